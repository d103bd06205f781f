package models

import "time"

// OutboxEntry stores the exact response of a completed finish-run call, keyed by
// (run_id, idempotency_key), so retries return it instead of settling twice.
type OutboxEntry struct {
	ID             string    `gorm:"primaryKey"`
	RunID          string    `gorm:"not null;uniqueIndex:ux_outbox_run_key,priority:1"`
	IdempotencyKey string    `gorm:"not null;uniqueIndex:ux_outbox_run_key,priority:2"`
	Response       string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (OutboxEntry) TableName() string { return "outbox" }
