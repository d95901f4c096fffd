package sshterminal

import "github.com/gluk-w/webssh/internal/ptyproc"

// Frame types exchanged over a terminal connection.
const (
	// client → server
	FrameStart  = "start"
	FrameInput  = "input"
	FrameResize = "resize"
	FrameClose  = "close"

	// server → client
	FrameReady  = "ready"
	FrameOutput = "output"
	FrameExit   = "exit"
	FrameError  = "error"
)

// Frame is a server → client message. Output frames carry Data and travel as
// binary websocket messages; every other frame is JSON encoded.
type Frame struct {
	Type         string       `json:"type"`
	Data         []byte       `json:"-"`
	ConnectionID string       `json:"connectionId,omitempty"`
	Backend      ptyproc.Kind `json:"backend,omitempty"`
	Resize       *bool        `json:"resize,omitempty"`
	Code         *int         `json:"code,omitempty"`
	Signal       string       `json:"signal,omitempty"`
	Message      string       `json:"message,omitempty"`
}

// ClientFrame is a client → server control message.
type ClientFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}
