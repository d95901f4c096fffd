package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/gluk-w/webssh/internal/audit"
	"github.com/gluk-w/webssh/internal/auth"
	"github.com/gluk-w/webssh/internal/config"
	"github.com/gluk-w/webssh/internal/database"
	"github.com/gluk-w/webssh/internal/handlers"
	"github.com/gluk-w/webssh/internal/logging"
	"github.com/gluk-w/webssh/internal/metrics"
	"github.com/gluk-w/webssh/internal/middleware"
	"github.com/gluk-w/webssh/internal/ptyproc"
	"github.com/gluk-w/webssh/internal/sshterminal"
)

//go:embed web
var webFS embed.FS

const (
	sshProbeTimeout   = 5 * time.Second
	limiterPruneSpec  = "@every 1m"
	generalRateWindow = time.Minute
)

func main() {
	// Handle CLI commands before starting the server
	if len(os.Args) > 1 && os.Args[1] == "--hash-password" {
		os.Exit(runHashPassword(os.Args[2:]))
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, closeLog, err := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Console: cfg.IsDevelopment(),
		Path:    cfg.LogPath,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog.Close()

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		closeLog.Close()
		os.Exit(1)
	}
}

func runHashPassword(args []string) int {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(os.Stderr, "Usage: webssh --hash-password <password>")
		return 1
	}
	hash, err := auth.HashPassword(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
		return 1
	}
	fmt.Println(hash)
	return 0
}

func run(cfg config.Settings, log zerolog.Logger) error {
	backend := ptyproc.Detect(cfg.ForcePipe)
	log.Info().
		Str("backend", string(backend.Kind())).
		Bool("resize", backend.SupportsResize()).
		Msg("terminal backend selected")

	probeCtx, cancelProbe := context.WithTimeout(context.Background(), sshProbeTimeout)
	version, err := sshterminal.ProbeSSH(probeCtx, cfg.SSHBinary)
	cancelProbe()
	sshAvailable := err == nil
	if sshAvailable {
		log.Info().Str("version", version).Msg("ssh client available")
	} else {
		log.Warn().Err(err).Str("binary", cfg.SSHBinary).Msg("ssh client unavailable, terminals will fail to start")
	}

	var db *gorm.DB
	var auditor *audit.Auditor
	if cfg.AuditDBPath != "" {
		db, err = database.Open(cfg.AuditDBPath)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		defer database.Close(db)
		auditor = audit.NewAuditor(db, cfg.AuditRetentionDays, log)
		log.Info().Str("path", cfg.AuditDBPath).Int("retention_days", auditor.RetentionDays()).Msg("audit log enabled")
	}

	sessions := auth.NewSessionStore(auth.SessionStoreConfig{
		TTL:           cfg.SessionTTL,
		SweepInterval: cfg.CleanupInterval,
		FailureDelay:  cfg.AuthFailureDelay,
	}, auth.NewHashVerifier(cfg.PasswordHash), log)
	defer sessions.Stop()

	var terminals *sshterminal.ProcessManager
	m := metrics.New(metrics.Gauges{
		ActiveSessions:  sessions.Count,
		ActiveProcesses: func() int { return terminals.Count() },
	})

	target := sshterminal.SSHTarget{
		Binary:  cfg.SSHBinary,
		Host:    cfg.SSHHost,
		User:    cfg.SSHUser,
		Port:    cfg.SSHPort,
		Options: cfg.SSHOptions,
	}
	terminals = sshterminal.NewProcessManager(sshterminal.ManagerConfig{
		Backend:       backend,
		Command:       target.SpawnOptions(),
		Timeout:       cfg.ProcessTimeout,
		KillGrace:     cfg.KillGrace,
		SweepInterval: cfg.CleanupInterval,
		OnStart: func(info sshterminal.HandleInfo) {
			m.TerminalStarted()
			auditor.TerminalStarted(info.UserID, info.ConnectionID, string(info.Backend), info.Pid)
		},
		OnClose: func(info sshterminal.HandleInfo, reason sshterminal.CloseReason, exit ptyproc.ExitInfo) {
			lifetime := time.Since(info.CreatedAt)
			m.TerminalClosed(string(reason), lifetime.Seconds())
			auditor.TerminalEnded(info.UserID, info.ConnectionID, string(reason), exit.Code, exit.Signal, lifetime)
		},
	}, log)
	defer terminals.Stop()
	log.Info().Str("target", target.String()).Dur("timeout", cfg.ProcessTimeout).Msg("process manager initialized")

	loginLimiter := middleware.NewRateLimiter("login", cfg.LoginRateMax, cfg.LoginRateWindow)
	generalLimiter := middleware.NewRateLimiter("general", cfg.GeneralRateMax, generalRateWindow)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(limiterPruneSpec, func() {
		loginLimiter.Prune()
		generalLimiter.Prune()
	}); err != nil {
		return fmt.Errorf("schedule limiter prune: %w", err)
	}
	if auditor != nil {
		if _, err := auditor.SchedulePurge(scheduler, cfg.AuditPurgeSchedule); err != nil {
			return fmt.Errorf("schedule audit purge: %w", err)
		}
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	static, err := fs.Sub(webFS, "web")
	if err != nil {
		return fmt.Errorf("embedded web assets: %w", err)
	}
	h := handlers.New(handlers.Deps{
		Sessions:       sessions,
		Terminals:      terminals,
		Audit:          auditor,
		Metrics:        m,
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		SSHAvailable:   sshAvailable,
		Dev:            cfg.IsDevelopment(),
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: h.Router(handlers.RouterOptions{
			Static:         static,
			LoginLimiter:   loginLimiter,
			GeneralLimiter: generalLimiter,
			MetricsHandler: m.Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("env", cfg.Env).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-sigCtx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := terminals.ShutdownAll(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("terminals still running at shutdown deadline")
	}
	log.Info().Msg("server stopped")
	return nil
}
