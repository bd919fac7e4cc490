package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/membergate/membergate/app/models"
)

// Repository provides the DB operations used by the billing service.
type Repository interface {
	AlreadyProcessed(eventID string) (bool, error)
	RecordProcessed(eventID string) error
	TrimProcessedBefore(cutoff time.Time) (int64, error)

	GetByEmail(email string) (*models.Subscription, error)
	GetByStripeSubscriptionID(id string) (*models.Subscription, error)
	Upsert(sub *models.Subscription) error
}

// ErrNotFound is returned by lookups when no record exists.
var ErrNotFound = gorm.ErrRecordNotFound

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) AlreadyProcessed(eventID string) (bool, error) {
	var ev models.ProcessedEvent
	err := r.db.Where("event_id = ?", eventID).First(&ev).Error
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

func (r *gormRepository) RecordProcessed(eventID string) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&models.ProcessedEvent{EventID: eventID, ReceivedAt: time.Now()}).Error
}

func (r *gormRepository) TrimProcessedBefore(cutoff time.Time) (int64, error) {
	tx := r.db.Where("received_at < ?", cutoff).Delete(&models.ProcessedEvent{})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) GetByEmail(email string) (*models.Subscription, error) {
	return models.FindSubscriptionByEmail(r.db, email)
}

func (r *gormRepository) GetByStripeSubscriptionID(id string) (*models.Subscription, error) {
	return models.FindSubscriptionByStripeID(r.db, id)
}

func (r *gormRepository) Upsert(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"full_name",
			"telegram_user_id",
			"stripe_customer_id",
			"stripe_session_id",
			"stripe_subscription_id",
			"plan",
			"status",
			"expires_at",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("email = ?", sub.Email).First(sub).Error
}
