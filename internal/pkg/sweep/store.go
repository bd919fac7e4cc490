package sweep

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/membergate/membergate/app/models"
)

// Store provides the DB operations used by the sweep engine.
type Store interface {
	// FindRemovalCandidates selects subscriptions due for removal: active
	// records more than graceDays past a known expiry, and canceled records
	// whose paid period (if any was known) has lapsed. Active records with
	// no known expiry are never candidates.
	FindRemovalCandidates(now time.Time, graceDays int) ([]models.Subscription, error)

	// FindInGracePeriod selects expired-but-not-yet-removable records, for
	// operator awareness only.
	FindInGracePeriod(now time.Time, graceDays int) ([]models.Subscription, error)

	// FindWarningCandidates selects active records with a member id whose
	// expiry falls inside [start, end).
	FindWarningCandidates(start, end time.Time) ([]models.Subscription, error)

	SaveSubscription(sub *models.Subscription) error
	IsWhitelisted(telegramUserID string) (bool, error)

	SaveRemovalLog(entry *models.RemovalLog) error
	WarningAlreadySent(subscriptionID uint, leadDays int) (bool, error)
	RecordWarning(entry *models.WarningLog) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a sweep store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) FindRemovalCandidates(now time.Time, graceDays int) ([]models.Subscription, error) {
	cutoff := now.AddDate(0, 0, -graceDays)
	var subs []models.Subscription
	err := s.db.
		Where("(status = ? AND expires_at IS NOT NULL AND expires_at < ?) OR (status = ? AND (expires_at IS NULL OR expires_at < ?))",
			models.SubscriptionStatusActive, cutoff,
			models.SubscriptionStatusCanceled, now).
		Order("expires_at ASC").
		Find(&subs).Error
	return subs, err
}

func (s *gormStore) FindInGracePeriod(now time.Time, graceDays int) ([]models.Subscription, error) {
	cutoff := now.AddDate(0, 0, -graceDays)
	var subs []models.Subscription
	err := s.db.
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ? AND expires_at >= ?",
			models.SubscriptionStatusActive, now, cutoff).
		Order("expires_at ASC").
		Find(&subs).Error
	return subs, err
}

func (s *gormStore) FindWarningCandidates(start, end time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.
		Where("status = ? AND telegram_user_id <> '' AND expires_at IS NOT NULL AND expires_at >= ? AND expires_at < ?",
			models.SubscriptionStatusActive, start, end).
		Find(&subs).Error
	return subs, err
}

func (s *gormStore) SaveSubscription(sub *models.Subscription) error {
	return s.db.Save(sub).Error
}

func (s *gormStore) IsWhitelisted(telegramUserID string) (bool, error) {
	return models.IsWhitelisted(s.db, telegramUserID)
}

func (s *gormStore) SaveRemovalLog(entry *models.RemovalLog) error {
	return s.db.Save(entry).Error
}

func (s *gormStore) WarningAlreadySent(subscriptionID uint, leadDays int) (bool, error) {
	var count int64
	err := s.db.Model(&models.WarningLog{}).
		Where("subscription_id = ? AND lead_days = ? AND sent = ?", subscriptionID, leadDays, true).
		Count(&count).Error
	return count > 0, err
}

func (s *gormStore) RecordWarning(entry *models.WarningLog) error {
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "subscription_id"},
			{Name: "lead_days"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"sent", "error_text"}),
	}).Create(entry).Error
}
