package models

import (
	"time"

	"gorm.io/gorm"
)

// InviteLog records every invite link issued to a member, used for cooldown
// enforcement and support lookups.
type InviteLog struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Email          string     `gorm:"type:varchar(255);not null;index:idx_invite_logs_email_created,priority:1" json:"email"`
	TelegramUserID string     `gorm:"type:varchar(32);default:''" json:"telegram_user_id"`
	InviteLink     string     `gorm:"type:varchar(512);not null" json:"invite_link"`
	MemberLimit    int        `gorm:"not null;default:1" json:"member_limit"`
	IsTemporary    bool       `gorm:"not null;default:true" json:"is_temporary"`
	ExpiresAt      *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index:idx_invite_logs_email_created,priority:2" json:"created_at"`
}

// FindRecentInviteByEmail returns the newest invite for an email inside the
// cooldown window, or gorm.ErrRecordNotFound.
func FindRecentInviteByEmail(db *gorm.DB, email string, cooldown time.Duration) (*InviteLog, error) {
	threshold := time.Now().Add(-cooldown)
	var entry InviteLog
	err := db.Where("email = ? AND created_at >= ?", NormalizeEmail(email), threshold).
		Order("created_at DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
