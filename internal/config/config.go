package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"
)

// Prefix is prepended to every environment variable name, e.g. WEBSSH_SSH_HOST.
const Prefix = "WEBSSH"

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

type Settings struct {
	Env        string `envconfig:"ENV" default:"development"`
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":3000"`

	// SSH hop settings
	SSHHost    string   `envconfig:"SSH_HOST"`
	SSHUser    string   `envconfig:"SSH_USER"`
	SSHPort    int      `envconfig:"SSH_PORT" default:"22"`
	SSHOptions []string `envconfig:"SSH_OPTIONS" default:"StrictHostKeyChecking=accept-new"`
	SSHBinary  string   `envconfig:"SSH_BINARY" default:"ssh"`

	// Authentication
	PasswordHash     string        `envconfig:"PASSWORD_HASH"`
	SessionTTL       time.Duration `envconfig:"SESSION_TTL" default:"60m"`
	AuthFailureDelay time.Duration `envconfig:"AUTH_FAILURE_DELAY" default:"1s"`

	// HTTP surface
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	LoginRateWindow time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"15m"`
	LoginRateMax    int           `envconfig:"LOGIN_RATE_MAX" default:"10"`
	GeneralRateMax  int           `envconfig:"GENERAL_RATE_MAX" default:"100"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogPath  string `envconfig:"LOG_PATH" default:""`

	// Terminal process settings
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"5m"`
	ProcessTimeout  time.Duration `envconfig:"PROCESS_TIMEOUT" default:"30m"`
	KillGrace       time.Duration `envconfig:"KILL_GRACE" default:"5s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	ForcePipe       bool          `envconfig:"FORCE_PIPE" default:"false"`

	// Audit trail (disabled when AuditDBPath is empty)
	AuditDBPath        string `envconfig:"AUDIT_DB_PATH" default:""`
	AuditRetentionDays int    `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`
	AuditPurgeSchedule string `envconfig:"AUDIT_PURGE_SCHEDULE" default:"@daily"`
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true,
}

// hostnamePattern matches RFC 1123 host names. Leading '-' is rejected so the
// value can never be parsed as an ssh option.
var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*$`)

var userPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// Load reads Settings from the environment and validates them.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return s, fmt.Errorf("load config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate reports the first invalid setting.
func (s Settings) Validate() error {
	switch s.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("config: ENV must be one of development, production, test (got %q)", s.Env)
	}
	if !logLevels[strings.ToLower(s.LogLevel)] {
		return fmt.Errorf("config: invalid LOG_LEVEL %q", s.LogLevel)
	}
	if s.SSHHost == "" {
		return fmt.Errorf("config: SSH_HOST is required")
	}
	if net.ParseIP(s.SSHHost) == nil && !hostnamePattern.MatchString(s.SSHHost) {
		return fmt.Errorf("config: SSH_HOST %q is neither an IP address nor a host name", s.SSHHost)
	}
	if s.SSHUser == "" {
		return fmt.Errorf("config: SSH_USER is required")
	}
	if !userPattern.MatchString(s.SSHUser) {
		return fmt.Errorf("config: SSH_USER %q contains invalid characters", s.SSHUser)
	}
	if s.SSHPort <= 0 || s.SSHPort > 65535 {
		return fmt.Errorf("config: SSH_PORT %d out of range", s.SSHPort)
	}
	for _, opt := range s.SSHOptions {
		if !strings.Contains(opt, "=") || strings.HasPrefix(opt, "-") {
			return fmt.Errorf("config: SSH_OPTIONS entry %q must be key=value", opt)
		}
	}
	if s.PasswordHash == "" {
		return fmt.Errorf("config: PASSWORD_HASH is required")
	}
	if _, err := bcrypt.Cost([]byte(s.PasswordHash)); err != nil {
		return fmt.Errorf("config: PASSWORD_HASH is not a bcrypt hash: %w", err)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"SESSION_TTL", s.SessionTTL},
		{"LOGIN_RATE_WINDOW", s.LoginRateWindow},
		{"CLEANUP_INTERVAL", s.CleanupInterval},
		{"PROCESS_TIMEOUT", s.ProcessTimeout},
		{"KILL_GRACE", s.KillGrace},
		{"SHUTDOWN_TIMEOUT", s.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("config: %s must be positive (got %s)", d.name, d.d)
		}
	}
	if s.AuthFailureDelay < 0 {
		return fmt.Errorf("config: AUTH_FAILURE_DELAY must not be negative")
	}
	if s.LoginRateMax <= 0 || s.GeneralRateMax <= 0 {
		return fmt.Errorf("config: rate limits must be positive")
	}
	if s.AuditRetentionDays < 0 {
		return fmt.Errorf("config: AUDIT_RETENTION_DAYS must not be negative")
	}
	return nil
}

// IsDevelopment reports whether internal error detail may be exposed to clients.
func (s Settings) IsDevelopment() bool {
	return s.Env == EnvDevelopment
}
