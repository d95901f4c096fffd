// Package audit records authentication and terminal lifecycle events to the
// database and mirrors them to the structured log.
//
// A nil *Auditor is valid and records nothing, so callers never need to check
// whether auditing is enabled.
package audit

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/gluk-w/webssh/internal/database"
	"github.com/gluk-w/webssh/internal/logutil"
)

// Event types.
const (
	EventLoginSuccess  = "login_success"
	EventLoginFailure  = "login_failure"
	EventLogout        = "logout"
	EventTerminalStart = "terminal_start"
	EventTerminalEnd   = "terminal_end"
)

// DefaultRetentionDays is the default number of days to keep audit logs.
const DefaultRetentionDays = 90

// Entry contains the fields needed to create an audit log entry.
type Entry struct {
	EventType    string
	UserID       string
	ConnectionID string
	SourceIP     string
	Details      string
	DurationMs   int64
}

type Auditor struct {
	db            *gorm.DB
	retentionDays int
	log           zerolog.Logger
	nowFn         func() time.Time // injectable clock for testing
}

// NewAuditor creates an Auditor writing to db. If retentionDays is 0,
// DefaultRetentionDays is used.
func NewAuditor(db *gorm.DB, retentionDays int, logger zerolog.Logger) *Auditor {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Auditor{
		db:            db,
		retentionDays: retentionDays,
		log:           logger.With().Str("component", "audit").Logger(),
		nowFn:         time.Now,
	}
}

// Log records an audit event to the database and the logger.
func (a *Auditor) Log(entry Entry) error {
	if a == nil {
		return nil
	}
	record := database.AuditLog{
		CreatedAt:    a.nowFn(),
		EventType:    entry.EventType,
		UserID:       entry.UserID,
		ConnectionID: entry.ConnectionID,
		SourceIP:     entry.SourceIP,
		Details:      logutil.SanitizeForLog(entry.Details),
		DurationMs:   entry.DurationMs,
	}
	if err := a.db.Create(&record).Error; err != nil {
		a.log.Error().Err(err).Str("event", entry.EventType).Msg("failed to write audit log")
		return err
	}

	a.log.Info().
		Str("event", entry.EventType).
		Str("user_id", entry.UserID).
		Str("conn_id", entry.ConnectionID).
		Str("ip", entry.SourceIP).
		Str("details", record.Details).
		Msg("audit")
	return nil
}

// QueryOptions specifies filters for retrieving audit logs.
type QueryOptions struct {
	EventType string
	UserID    string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// QueryResult contains audit log entries and pagination metadata.
type QueryResult struct {
	Entries []database.AuditLog `json:"entries"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// Query retrieves audit log entries matching opts, newest first.
func (a *Auditor) Query(opts QueryOptions) (*QueryResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if a == nil {
		return &QueryResult{Entries: []database.AuditLog{}, Limit: opts.Limit, Offset: opts.Offset}, nil
	}

	tx := a.db.Model(&database.AuditLog{})
	if opts.EventType != "" {
		tx = tx.Where("event_type = ?", opts.EventType)
	}
	if opts.UserID != "" {
		tx = tx.Where("user_id = ?", opts.UserID)
	}
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		tx = tx.Where("created_at <= ?", *opts.Until)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	entries := []database.AuditLog{}
	if err := tx.Order("created_at DESC, id DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, err
	}

	return &QueryResult{
		Entries: entries,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}, nil
}

// PurgeOlderThan removes entries older than days (the configured retention
// when days is 0) and returns how many were deleted.
func (a *Auditor) PurgeOlderThan(days int) (int64, error) {
	if a == nil {
		return 0, nil
	}
	if days <= 0 {
		days = a.retentionDays
	}
	cutoff := a.nowFn().AddDate(0, 0, -days)
	result := a.db.Where("created_at < ?", cutoff).Delete(&database.AuditLog{})
	if result.Error != nil {
		a.log.Error().Err(result.Error).Msg("purge failed")
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		a.log.Info().Int64("deleted", result.RowsAffected).Int("days", days).Msg("purged old audit entries")
	}
	return result.RowsAffected, nil
}

// SchedulePurge registers the retention purge on c using a standard cron
// spec or descriptor such as "@daily".
func (a *Auditor) SchedulePurge(c *cron.Cron, spec string) (cron.EntryID, error) {
	if a == nil {
		return 0, nil
	}
	id, err := c.AddFunc(spec, func() {
		_, _ = a.PurgeOlderThan(0)
	})
	if err != nil {
		return 0, fmt.Errorf("schedule audit purge %q: %w", spec, err)
	}
	return id, nil
}

// RetentionDays returns the configured retention period.
func (a *Auditor) RetentionDays() int {
	if a == nil {
		return 0
	}
	return a.retentionDays
}

// SetNowFunc sets the clock function used for testing.
func (a *Auditor) SetNowFunc(fn func() time.Time) {
	a.nowFn = fn
}
