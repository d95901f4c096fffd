package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gluk-w/webssh/internal/auth"
	"github.com/gluk-w/webssh/internal/middleware"
	"github.com/gluk-w/webssh/internal/ptyproc"
	"github.com/gluk-w/webssh/internal/sshterminal"
)

const (
	// frameQueueSize bounds the outbound frames buffered per connection.
	// Process readers block once it is full.
	frameQueueSize = 256

	// wsReadLimit is larger than MaxInputMessageSize so oversized input is
	// rejected with an error frame instead of tearing down the connection.
	wsReadLimit = 1024 * 1024

	writeTimeout = 10 * time.Second
)

// frameQueue is the connection's sshterminal.Relay. A single writer goroutine
// drains it onto the websocket.
type frameQueue struct {
	ch   chan sshterminal.Frame
	done chan struct{}
	once sync.Once
}

func newFrameQueue(size int) *frameQueue {
	return &frameQueue{
		ch:   make(chan sshterminal.Frame, size),
		done: make(chan struct{}),
	}
}

// Send blocks while the queue is full and returns false once the connection
// has gone away.
func (q *frameQueue) Send(f sshterminal.Frame) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- f:
		return true
	case <-q.done:
		return false
	}
}

func (q *frameQueue) close() {
	q.once.Do(func() { close(q.done) })
}

func errorFrame(message string) sshterminal.Frame {
	return sshterminal.Frame{Type: sshterminal.FrameError, Message: message}
}

// TerminalWS upgrades an authenticated request to the terminal channel. Each
// connection owns at most one process at a time. The process is closed when
// the client sends close, disconnects, or the process exits by itself.
func (h *Handler) TerminalWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.origins,
		InsecureSkipVerify: h.anyOrigin,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to accept terminal websocket")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)

	connID := uuid.NewString()
	log := h.log.With().Str("conn_id", connID).Str("user_id", sess.UserID).Logger()
	log.Info().Msg("terminal channel opened")

	ctx, cancel := context.WithCancel(r.Context())
	queue := newFrameQueue(frameQueueSize)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		h.writeLoop(ctx, conn, queue, log)
	}()

	defer func() {
		cancel()
		queue.close()
		h.terminals.Close(connID, sshterminal.ReasonDisconnect)
		<-writerDone
		log.Info().Msg("terminal channel closed")
	}()

	limiter := sshterminal.NewRateLimiter(sshterminal.MessageRateLimit, sshterminal.MessageRateBurst)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				log.Debug().Err(err).Msg("terminal read ended")
			}
			return
		}
		if !limiter.Allow() {
			h.metrics.RateLimited("terminal")
			continue
		}
		h.handleMessage(connID, sess, typ, data, queue, log)
	}
}

// handleMessage dispatches one client message. A panic is reported to the
// client as an error frame and leaves the connection usable.
func (h *Handler) handleMessage(connID string, sess auth.Session, typ websocket.MessageType, data []byte, queue *frameQueue, log zerolog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("terminal message handler panicked")
			queue.Send(errorFrame("Internal error"))
		}
	}()

	if typ == websocket.MessageBinary {
		h.input(connID, data, queue, log)
		return
	}

	var msg sshterminal.ClientFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		queue.Send(errorFrame("Invalid message"))
		return
	}

	switch msg.Type {
	case sshterminal.FrameStart:
		_, err := h.terminals.Start(connID, sess.UserID, msg.Cols, msg.Rows, queue)
		switch {
		case err == nil:
		case errors.Is(err, sshterminal.ErrAlreadyExists):
			queue.Send(errorFrame("Terminal already running"))
		case errors.Is(err, sshterminal.ErrShuttingDown):
			queue.Send(errorFrame("Server is shutting down"))
		case errors.Is(err, sshterminal.ErrNotRunning):
			// closed while starting; the exit frame has been sent
		default:
			queue.Send(errorFrame("Failed to start terminal"))
		}

	case sshterminal.FrameInput:
		h.input(connID, []byte(msg.Data), queue, log)

	case sshterminal.FrameResize:
		err := h.terminals.Resize(connID, msg.Cols, msg.Rows)
		switch {
		case err == nil:
		case errors.Is(err, ptyproc.ErrResizeUnsupported):
			queue.Send(errorFrame("Resize is not supported by the " + string(h.terminals.Backend().Kind()) + " backend"))
		case errors.Is(err, sshterminal.ErrNotFound):
			queue.Send(errorFrame("No terminal running"))
		case errors.Is(err, sshterminal.ErrNotRunning):
		default:
			log.Debug().Err(err).Msg("resize failed")
			queue.Send(errorFrame("Terminal resize failed"))
		}

	case sshterminal.FrameClose:
		h.terminals.Close(connID, sshterminal.ReasonClient)

	default:
		queue.Send(errorFrame("Unknown message type"))
	}
}

func (h *Handler) input(connID string, data []byte, queue *frameQueue, log zerolog.Logger) {
	if len(data) > sshterminal.MaxInputMessageSize {
		queue.Send(errorFrame("Input too large"))
		return
	}
	err := h.terminals.Input(connID, data)
	switch {
	case err == nil:
	case errors.Is(err, sshterminal.ErrNotFound), errors.Is(err, sshterminal.ErrNotRunning):
		log.Warn().Int("bytes", len(data)).Msg("input dropped, no running terminal")
	default:
		log.Debug().Err(err).Msg("terminal input failed")
		queue.Send(errorFrame("Terminal write failed"))
	}
}

// writeLoop is the only writer on conn. Output frames go out as binary
// messages, everything else as JSON text.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, queue *frameQueue, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-queue.done:
			return
		case f := <-queue.ch:
			typ, payload := websocket.MessageBinary, f.Data
			if f.Type != sshterminal.FrameOutput {
				b, err := json.Marshal(f)
				if err != nil {
					log.Error().Err(err).Str("type", f.Type).Msg("encode frame")
					continue
				}
				typ, payload = websocket.MessageText, b
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, typ, payload)
			wcancel()
			if err != nil {
				log.Debug().Err(err).Msg("terminal write ended")
				return
			}
		}
	}
}
