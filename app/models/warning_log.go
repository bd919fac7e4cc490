package models

import "time"

// WarningLog tracks advance renewal warnings per subscription and lead time.
// The unique index is the idempotence gate: one milestone is never notified
// twice, even across restarts.
type WarningLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubscriptionID uint      `gorm:"not null;index:ux_warning_logs_sub_lead,unique,priority:1" json:"subscription_id"`
	LeadDays       int       `gorm:"not null;index:ux_warning_logs_sub_lead,unique,priority:2" json:"lead_days"`
	Sent           bool      `gorm:"default:false" json:"sent"`
	ErrorText      string    `gorm:"type:text" json:"error_text"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
