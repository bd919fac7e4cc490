package models

import "time"

// ProcessedEvent records upstream event ids that have already been applied.
// Rows are write-once; existence is the deduplication gate. A retention sweep
// trims old rows, nothing else touches them.
type ProcessedEvent struct {
	EventID    string    `gorm:"type:varchar(64);primaryKey" json:"event_id"`
	ReceivedAt time.Time `gorm:"autoCreateTime;index" json:"received_at"`
}
