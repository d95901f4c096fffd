package database

import "time"

// AuditLog is one row of the audit trail.
type AuditLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `gorm:"index" json:"createdAt"`
	EventType    string    `gorm:"index;not null" json:"eventType"`
	UserID       string    `gorm:"index" json:"userId,omitempty"`
	ConnectionID string    `json:"connectionId,omitempty"`
	SourceIP     string    `json:"sourceIp,omitempty"`
	Details      string    `json:"details,omitempty"`
	DurationMs   int64     `json:"durationMs,omitempty"`
}
