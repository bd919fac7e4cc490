package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/membergate/membergate/app/models"
	"github.com/membergate/membergate/internal/pkg/config"
	"github.com/membergate/membergate/internal/pkg/database"
	"github.com/membergate/membergate/internal/pkg/sweep"
)

var (
	adminCfg    *config.Config
	sweepEngine *sweep.Engine
)

// InitializeAdminController wires the admin API with its collaborators.
func InitializeAdminController(cfg *config.Config, engine *sweep.Engine) {
	adminCfg = cfg
	sweepEngine = engine
}

// SubscriptionInput is the admin create/update payload.
type SubscriptionInput struct {
	Email                string     `json:"email" validate:"required,email"`
	FullName             string     `json:"full_name"`
	TelegramUserID       string     `json:"telegram_user_id" validate:"omitempty,numeric"`
	StripeCustomerID     string     `json:"stripe_customer_id"`
	StripeSubscriptionID string     `json:"stripe_subscription_id"`
	Plan                 string     `json:"plan" validate:"omitempty,oneof=monthly quarterly annual"`
	Status               string     `json:"status" validate:"required,oneof=pending active past_due canceled auto_removed manually_removed"`
	ExpiresAt            *time.Time `json:"expires_at"`
}

// Validate checks the payload against its constraints.
func (in *SubscriptionInput) Validate() error {
	v := validator.New()
	return v.Struct(in)
}

// WhitelistInput is the admin whitelist-add payload.
type WhitelistInput struct {
	TelegramUserID string `json:"telegram_user_id" validate:"required,numeric"`
	Email          string `json:"email" validate:"omitempty,email"`
	Reason         string `json:"reason"`
	AddedBy        string `json:"added_by"`
}

// Validate checks the payload against its constraints.
func (in *WhitelistInput) Validate() error {
	v := validator.New()
	return v.Struct(in)
}

// HandleListSubscriptions lists subscription records, filterable by status
// and email substring.
func HandleListSubscriptions(c *fiber.Ctx) error {
	db := database.GetDB()
	query := db.Model(&models.Subscription{}).Order("updated_at DESC").Limit(500)

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		query = query.Where("status = ?", status)
	}
	if email := strings.TrimSpace(c.Query("email")); email != "" {
		query = query.Where("email LIKE ?", "%"+models.NormalizeEmail(email)+"%")
	}

	var subs []models.Subscription
	if err := query.Find(&subs).Error; err != nil {
		return internalError(c, "listing subscriptions failed", err)
	}
	return c.JSON(fiber.Map{"subscriptions": subs})
}

// HandleGetSubscription returns one record by email.
func HandleGetSubscription(c *fiber.Ctx) error {
	sub, err := models.FindSubscriptionByEmail(database.GetDB(), c.Params("email"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "subscription not found"})
		}
		return internalError(c, "subscription lookup failed", err)
	}
	return c.JSON(sub)
}

// HandleUpsertSubscription creates or updates a record by email. This is the
// manual administrative path; it may set any status including
// manually_removed.
func HandleUpsertSubscription(c *fiber.Ctx) error {
	var in SubscriptionInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := in.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	db := database.GetDB()
	email := models.NormalizeEmail(in.Email)
	sub, err := models.FindSubscriptionByEmail(db, email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return internalError(c, "subscription lookup failed", err)
		}
		sub = &models.Subscription{Email: email}
	}

	sub.FullName = in.FullName
	sub.TelegramUserID = in.TelegramUserID
	sub.StripeCustomerID = in.StripeCustomerID
	sub.StripeSubscriptionID = in.StripeSubscriptionID
	sub.Plan = in.Plan
	sub.Status = in.Status
	sub.ExpiresAt = in.ExpiresAt

	if err := db.Save(sub).Error; err != nil {
		return internalError(c, "saving subscription failed", err)
	}
	return c.JSON(sub)
}

// HandleDeleteSubscription removes a record entirely.
func HandleDeleteSubscription(c *fiber.Ctx) error {
	email := models.NormalizeEmail(c.Params("email"))
	tx := database.GetDB().Where("email = ?", email).Delete(&models.Subscription{})
	if tx.Error != nil {
		return internalError(c, "deleting subscription failed", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "subscription not found"})
	}
	return c.JSON(fiber.Map{"deleted": email})
}

// HandleListGracePeriod returns expired-but-not-yet-removable subscriptions.
func HandleListGracePeriod(c *fiber.Ctx) error {
	store := sweep.NewStore(database.GetDB())
	subs, err := store.FindInGracePeriod(time.Now(), adminCfg.GraceDays)
	if err != nil {
		return internalError(c, "grace-period query failed", err)
	}
	return c.JSON(fiber.Map{"grace_days": adminCfg.GraceDays, "subscriptions": subs})
}

// HandleListWhitelist lists all whitelist entries.
func HandleListWhitelist(c *fiber.Ctx) error {
	var entries []models.WhitelistEntry
	if err := database.GetDB().Order("created_at DESC").Find(&entries).Error; err != nil {
		return internalError(c, "listing whitelist failed", err)
	}
	return c.JSON(fiber.Map{"whitelist": entries})
}

// HandleAddWhitelistEntry adds a member to the whitelist.
func HandleAddWhitelistEntry(c *fiber.Ctx) error {
	var in WhitelistInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := in.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	entry := &models.WhitelistEntry{
		TelegramUserID: in.TelegramUserID,
		Email:          models.NormalizeEmail(in.Email),
		Reason:         in.Reason,
		AddedBy:        in.AddedBy,
	}
	if err := database.GetDB().Create(entry).Error; err != nil {
		return internalError(c, "adding whitelist entry failed", err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// HandleRemoveWhitelistEntry deletes a whitelist entry by member id.
func HandleRemoveWhitelistEntry(c *fiber.Ctx) error {
	memberID := c.Params("member_id")
	tx := database.GetDB().Where("telegram_user_id = ?", memberID).Delete(&models.WhitelistEntry{})
	if tx.Error != nil {
		return internalError(c, "removing whitelist entry failed", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "whitelist entry not found"})
	}
	return c.JSON(fiber.Map{"deleted": memberID})
}

// HandleListRemovalLogs lists removal audit entries, newest first.
func HandleListRemovalLogs(c *fiber.Ctx) error {
	db := database.GetDB()
	query := db.Model(&models.RemovalLog{}).Order("created_at DESC").Limit(500)
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		query = query.Where("status = ?", status)
	}
	if email := strings.TrimSpace(c.Query("email")); email != "" {
		query = query.Where("email = ?", models.NormalizeEmail(email))
	}

	var logs []models.RemovalLog
	if err := query.Find(&logs).Error; err != nil {
		return internalError(c, "listing removal logs failed", err)
	}
	return c.JSON(fiber.Map{"logs": logs})
}

// HandleListWarningLogs lists advance-warning ledger entries.
func HandleListWarningLogs(c *fiber.Ctx) error {
	var logs []models.WarningLog
	if err := database.GetDB().Order("created_at DESC").Limit(500).Find(&logs).Error; err != nil {
		return internalError(c, "listing warning logs failed", err)
	}
	return c.JSON(fiber.Map{"logs": logs})
}

// HandleTriggerSweep runs an immediate removal sweep. An in-flight sweep is
// not queued behind; the trigger is rejected.
func HandleTriggerSweep(c *fiber.Ctx) error {
	summary, err := sweepEngine.RunRemovalSweep(c.Context())
	if err != nil {
		if errors.Is(err, sweep.ErrSweepInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "sweep already in progress"})
		}
		return internalError(c, "sweep failed", err)
	}
	return c.JSON(summary)
}

func internalError(c *fiber.Ctx, msg string, err error) error {
	log.Errorf("[Admin] %s: %v", msg, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": msg})
}
