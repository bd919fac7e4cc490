package models

import (
	"time"

	"gorm.io/gorm"
)

// WhitelistEntry exempts a member from automatic removal. Consulted by the
// sweep engine before any action; never mutated by core logic.
type WhitelistEntry struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TelegramUserID string    `gorm:"type:varchar(32);not null;uniqueIndex" json:"telegram_user_id"`
	Email          string    `gorm:"type:varchar(255);default:''" json:"email"`
	Reason         string    `gorm:"type:text" json:"reason"`
	AddedBy        string    `gorm:"type:varchar(255);default:''" json:"added_by"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// IsWhitelisted reports whether a member id has a whitelist entry.
func IsWhitelisted(db *gorm.DB, telegramUserID string) (bool, error) {
	if telegramUserID == "" {
		return false, nil
	}
	var count int64
	err := db.Model(&WhitelistEntry{}).Where("telegram_user_id = ?", telegramUserID).Count(&count).Error
	return count > 0, err
}
