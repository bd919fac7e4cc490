package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/membergate/membergate/app/models"
	"github.com/membergate/membergate/internal/pkg/config"
	"github.com/membergate/membergate/internal/pkg/database"
	"github.com/membergate/membergate/internal/pkg/telegram"
)

var (
	inviteCfg    *config.Config
	inviteClient *telegram.Client
)

// InitializeInviteController wires the invite issuing endpoint.
func InitializeInviteController(cfg *config.Config, client *telegram.Client) {
	inviteCfg = cfg
	inviteClient = client
}

// InviteInput is the unlock-access payload.
type InviteInput struct {
	Email string `json:"email" validate:"required,email"`
}

// Validate checks the payload against its constraints.
func (in *InviteInput) Validate() error {
	v := validator.New()
	return v.Struct(in)
}

// HandleIssueInvites creates fresh invite links for a paid-up member, one per
// configured group. Requests inside the cooldown window get the previously
// issued link back instead of a new one.
func HandleIssueInvites(c *fiber.Ctx) error {
	var in InviteInput
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
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no subscription for this email"})
		}
		return internalError(c, "subscription lookup failed", err)
	}
	if sub.Status != models.SubscriptionStatusActive {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "subscription is not active"})
	}
	if sub.ExpiresAt != nil && sub.ExpiresAt.Before(time.Now()) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "subscription has expired"})
	}

	if recent, err := models.FindRecentInviteByEmail(db, email, inviteCfg.InviteCooldown); err == nil {
		return c.JSON(fiber.Map{
			"invites":  []string{recent.InviteLink},
			"cooldown": true,
		})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return internalError(c, "invite cooldown lookup failed", err)
	}

	var links []string
	expiresAt := time.Now().Add(inviteCfg.InviteTTL)
	for _, groupID := range inviteCfg.GroupIDs {
		link, err := inviteClient.CreateInvite(c.Context(), groupID, inviteCfg.InviteTTL, 1)
		if err != nil {
			log.Warnf("[Invite] creating invite for group %d failed: %v", groupID, err)
			continue
		}
		links = append(links, link)

		entry := &models.InviteLog{
			Email:          email,
			TelegramUserID: sub.TelegramUserID,
			InviteLink:     link,
			MemberLimit:    1,
			IsTemporary:    true,
			ExpiresAt:      &expiresAt,
		}
		if err := db.Create(entry).Error; err != nil {
			log.Errorf("[Invite] recording invite for %s failed: %v", email, err)
		}
	}

	if len(links) == 0 {
		if inviteCfg.FallbackInviteEnabled && inviteCfg.FallbackInviteLink != "" {
			log.Warnf("[Invite] all invite creations failed for %s, serving fallback link", email)
			return c.JSON(fiber.Map{
				"invites":  []string{inviteCfg.FallbackInviteLink},
				"fallback": true,
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "could not create invite links"})
	}

	return c.JSON(fiber.Map{"invites": links})
}
