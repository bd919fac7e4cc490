package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	PlanMonthly   = "monthly"
	PlanQuarterly = "quarterly"
	PlanAnnual    = "annual"
	PlanUnknown   = ""
)

const (
	SubscriptionStatusPending         = "pending"
	SubscriptionStatusActive          = "active"
	SubscriptionStatusPastDue         = "past_due"
	SubscriptionStatusCanceled        = "canceled"
	SubscriptionStatusAutoRemoved     = "auto_removed"
	SubscriptionStatusManuallyRemoved = "manually_removed"
)

// Subscription is the single authoritative record per billing email. Webhook
// events are folded into it; the sweep engine reads and finalizes it.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	Email                string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	FullName             string     `gorm:"type:varchar(255);default:''" json:"full_name"`
	TelegramUserID       string     `gorm:"type:varchar(32);default:'';index" json:"telegram_user_id"`
	StripeCustomerID     string     `gorm:"type:varchar(64);default:''" json:"stripe_customer_id"`
	StripeSessionID      string     `gorm:"type:varchar(64);default:''" json:"stripe_session_id"`
	StripeSubscriptionID string     `gorm:"type:varchar(64);default:'';index" json:"stripe_subscription_id"`
	Plan                 string     `gorm:"type:varchar(32);default:''" json:"plan"`
	Status               string     `gorm:"type:varchar(32);not null;default:'pending';index:idx_subscriptions_status_expires,priority:1" json:"status"`
	ExpiresAt            *time.Time `gorm:"type:timestamp;default:null;index:idx_subscriptions_status_expires,priority:2" json:"expires_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email for use as the natural key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsTerminal reports whether the record is in a removed end state.
func (s *Subscription) IsTerminal() bool {
	return s.Status == SubscriptionStatusAutoRemoved || s.Status == SubscriptionStatusManuallyRemoved
}

// FindSubscriptionByEmail looks up the record for a normalized email.
func FindSubscriptionByEmail(db *gorm.DB, email string) (*Subscription, error) {
	var sub Subscription
	if err := db.Where("email = ?", NormalizeEmail(email)).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindSubscriptionByStripeID is the fallback lookup when an event carries no
// email but references a billing subscription id.
func FindSubscriptionByStripeID(db *gorm.DB, stripeSubscriptionID string) (*Subscription, error) {
	var sub Subscription
	if err := db.Where("stripe_subscription_id = ? AND stripe_subscription_id <> ''", stripeSubscriptionID).
		First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}
