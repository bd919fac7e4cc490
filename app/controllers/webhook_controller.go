package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/membergate/membergate/internal/pkg/billing"
	"github.com/membergate/membergate/internal/pkg/config"
)

var (
	webhookCfg     *config.Config
	billingService *billing.Service
)

// InitializeWebhookController wires the Stripe webhook endpoint.
func InitializeWebhookController(cfg *config.Config, svc *billing.Service) {
	webhookCfg = cfg
	billingService = svc
}

// HandleStripeWebhook receives Stripe events. The signature is verified
// against the endpoint secret before the payload is trusted. Events the
// service does not understand are acknowledged so Stripe stops redelivering
// them; processing failures return 500 so Stripe retries, which is safe
// because ingestion deduplicates by event id.
func HandleStripeWebhook(c *fiber.Ctx) error {
	if webhookCfg.StripeWebhookSecret == "" {
		log.Error("[Webhook] STRIPE_WEBHOOK_SECRET is not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook not configured"})
	}

	event, err := webhook.ConstructEvent(c.Body(), c.Get("Stripe-Signature"), webhookCfg.StripeWebhookSecret)
	if err != nil {
		log.Warnf("[Webhook] signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid signature"})
	}

	parsed, err := billing.ParseEvent(event.ID, string(event.Type), event.Data.Raw)
	if err != nil {
		log.Warnf("[Webhook] dropping malformed event %s (%s): %v", event.ID, event.Type, err)
		return c.JSON(fiber.Map{"received": true})
	}

	change, err := billingService.ProcessEvent(c.Context(), parsed)
	if err != nil {
		log.Errorf("[Webhook] processing event %s failed: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing failed"})
	}

	return c.JSON(fiber.Map{"received": true, "change": string(change)})
}
