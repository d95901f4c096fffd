package handlers

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/gluk-w/webssh/internal/middleware"
	"github.com/gluk-w/webssh/internal/sshterminal"
)

type terminalEntry struct {
	ConnectionID string            `json:"connectionId"`
	State        sshterminal.State `json:"state"`
	Pid          int               `json:"pid,omitempty"`
	Alive        bool              `json:"alive"`
	CreatedAt    time.Time         `json:"createdAt"`
	TimeoutAt    time.Time         `json:"timeoutAt"`
}

type statsResponse struct {
	ActiveProcesses int             `json:"activeProcesses"`
	ActiveSessions  int             `json:"activeSessions"`
	Backend         string          `json:"backend"`
	ResizeSupported bool            `json:"resizeSupported"`
	Terminals       []terminalEntry `json:"terminals"`
}

// TerminalStats reports process manager counters plus the caller's own
// terminals, each checked against the OS process table.
func (h *Handler) TerminalStats(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.GetSession(r)
	backend := h.terminals.Backend()

	resp := statsResponse{
		ActiveProcesses: h.terminals.Count(),
		ActiveSessions:  h.sessions.Count(),
		Backend:         string(backend.Kind()),
		ResizeSupported: backend.SupportsResize(),
		Terminals:       []terminalEntry{},
	}
	for _, info := range h.terminals.List() {
		if info.UserID != sess.UserID {
			continue
		}
		entry := terminalEntry{
			ConnectionID: info.ConnectionID,
			State:        info.State,
			Pid:          info.Pid,
			CreatedAt:    info.CreatedAt,
			TimeoutAt:    info.TimeoutAt,
		}
		if info.Pid > 0 {
			entry.Alive, _ = process.PidExistsWithContext(r.Context(), int32(info.Pid))
		}
		resp.Terminals = append(resp.Terminals, entry)
	}
	writeJSON(w, http.StatusOK, resp)
}
