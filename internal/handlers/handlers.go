package handlers

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/gluk-w/webssh/internal/audit"
	"github.com/gluk-w/webssh/internal/auth"
	"github.com/gluk-w/webssh/internal/metrics"
	"github.com/gluk-w/webssh/internal/sshterminal"
)

// Deps are the collaborators a Handler serves requests with. Audit and
// Metrics may be nil.
type Deps struct {
	Sessions  *auth.SessionStore
	Terminals *sshterminal.ProcessManager
	Audit     *audit.Auditor
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger

	// AllowedOrigins restricts websocket upgrades. "*" accepts any origin.
	AllowedOrigins []string
	// SSHAvailable is the result of the startup ssh probe.
	SSHAvailable bool
	// Dev exposes panic details in error responses.
	Dev bool
}

// Handler implements the HTTP and websocket endpoints.
type Handler struct {
	sessions  *auth.SessionStore
	terminals *sshterminal.ProcessManager
	audit     *audit.Auditor
	metrics   *metrics.Metrics
	log       zerolog.Logger

	origins      []string
	anyOrigin    bool
	sshAvailable bool
	dev          bool

	startedAt time.Time
	self      *process.Process

	nowFn func() time.Time // injectable clock for testing
}

func New(d Deps) *Handler {
	h := &Handler{
		sessions:     d.Sessions,
		terminals:    d.Terminals,
		audit:        d.Audit,
		metrics:      d.Metrics,
		log:          d.Logger,
		sshAvailable: d.SSHAvailable,
		dev:          d.Dev,
		nowFn:        time.Now,
	}
	h.origins, h.anyOrigin = originPatterns(d.AllowedOrigins)
	h.startedAt = h.nowFn()
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		h.self = p
	} else {
		h.log.Warn().Err(err).Msg("process stats unavailable")
	}
	return h
}

// SetNowFunc sets the clock used for uptime and timestamps (tests).
func (h *Handler) SetNowFunc(fn func() time.Time) {
	h.nowFn = fn
}
