package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gluk-w/webssh/internal/audit"
)

// AuditLogs handles GET /api/audit.
// Query parameters:
//   - event_type (optional): filter by event type
//   - user_id (optional): filter by session user id
//   - since, until (optional): RFC 3339 bounds on the entry time
//   - limit (optional): entries per page (default 50, max 1000)
//   - offset (optional): pagination offset
//
// With auditing disabled the endpoint returns an empty page.
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := audit.QueryOptions{
		EventType: q.Get("event_type"),
		UserID:    q.Get("user_id"),
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		opts.Limit = limit
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		opts.Offset = offset
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"since", &opts.Since}, {"until", &opts.Until}} {
		s := q.Get(bound.name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+bound.name)
			return
		}
		*bound.dst = &t
	}

	result, err := h.audit.Query(opts)
	if err != nil {
		h.log.Error().Err(err).Msg("query audit log")
		writeError(w, http.StatusInternalServerError, "Failed to query audit logs")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
