package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gluk-w/webssh/internal/auth"
	"github.com/gluk-w/webssh/internal/logutil"
	"github.com/gluk-w/webssh/internal/middleware"
)

// maxLoginBody bounds the login request body.
const maxLoginBody = 4 << 10

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	ExpiresAt int64  `json:"expiresAt"`
}

type statusResponse struct {
	Valid     bool   `json:"valid"`
	UserID    string `json:"userId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Login exchanges the shared secret for a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&body); err != nil || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Password is required")
		return
	}

	ip := middleware.ClientIP(r)
	sess, err := h.sessions.Authenticate(r.Context(), body.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrAuthFailure) {
			h.log.Error().Err(err).Msg("login failed")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		h.metrics.LoginAttempt(false)
		h.audit.LoginFailed(ip)
		h.log.Warn().Str("ip", logutil.SanitizeForLog(ip)).Msg("failed login attempt")
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	h.metrics.LoginAttempt(true)
	h.audit.LoginSucceeded(sess.UserID, ip)
	h.log.Info().
		Str("user_id", sess.UserID).
		Str("token", logutil.TokenPrefix(sess.Token)).
		Msg("login succeeded")
	writeJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		Token:     sess.Token,
		UserID:    sess.UserID,
		ExpiresAt: sess.ExpiresAt.UnixMilli(),
	})
}

// Status reports the caller's session and slides its expiry forward.
// It sits behind middleware.RequireAuth.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.GetSession(r)
	if !ok || !h.sessions.Refresh(sess.Token) {
		writeError(w, http.StatusUnauthorized, "Invalid or expired session")
		return
	}
	if refreshed, err := h.sessions.Validate(sess.Token); err == nil {
		sess = refreshed
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Valid:     true,
		UserID:    sess.UserID,
		ExpiresAt: sess.ExpiresAt.UnixMilli(),
	})
}

// Logout revokes the presented token and closes its terminals. It succeeds
// whether or not the token was still valid.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if sess, err := h.sessions.Validate(token); err == nil {
		killed := h.terminals.KillAllForUser(sess.UserID)
		h.audit.LoggedOut(sess.UserID, middleware.ClientIP(r), killed)
		h.log.Info().
			Str("user_id", sess.UserID).
			Int("terminals", killed).
			Msg("logged out")
	}
	h.sessions.Revoke(token)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
