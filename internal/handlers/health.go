package handlers

import (
	"net/http"
	"time"
)

type memoryStats struct {
	RSS uint64 `json:"rss"`
}

type healthResponse struct {
	Status          string       `json:"status"`
	Timestamp       string       `json:"timestamp"`
	Uptime          float64      `json:"uptime"`
	ActiveSessions  int          `json:"activeSessions"`
	ActiveProcesses int          `json:"activeProcesses"`
	Backend         string       `json:"backend"`
	SSH             string       `json:"ssh"`
	Memory          *memoryStats `json:"memory,omitempty"`
}

// Health is the unauthenticated liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.nowFn()
	ssh := "unavailable"
	if h.sshAvailable {
		ssh = "available"
	}
	resp := healthResponse{
		Status:          "ok",
		Timestamp:       now.UTC().Format(time.RFC3339),
		Uptime:          now.Sub(h.startedAt).Seconds(),
		ActiveSessions:  h.sessions.Count(),
		ActiveProcesses: h.terminals.Count(),
		Backend:         string(h.terminals.Backend().Kind()),
		SSH:             ssh,
	}
	if h.self != nil {
		if mem, err := h.self.MemoryInfoWithContext(r.Context()); err == nil {
			resp.Memory = &memoryStats{RSS: mem.RSS}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
