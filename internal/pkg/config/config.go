package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/membergate/membergate/app/models"
	"github.com/membergate/membergate/internal/pkg/env"
)

// Config carries all recognized options, resolved once at startup and passed
// by reference into the reducer and sweep engine. Core packages never read
// the environment themselves.
type Config struct {
	// Telegram
	BotToken           string
	TelegramAPIBaseURL string
	GroupIDs           []int64

	// Stripe
	StripeWebhookSecret string
	PricePlanMap        map[string]string // price id -> plan

	// Sweep / scheduling
	GraceDays          int
	SweepHour          int
	WarningHour        int
	Location           *time.Location
	AutoRemovalEnabled bool

	// Invites
	FallbackInviteEnabled bool
	FallbackInviteLink    string
	InviteTTL             time.Duration
	InviteCooldown        time.Duration

	// Notifications
	RenewalURL string

	// Housekeeping
	ProcessedEventRetention time.Duration

	// Admin API
	AdminUser     string
	AdminPassword string
}

// Load builds the configuration from the environment.
func Load() *Config {
	loc, err := time.LoadLocation(env.GetEnv("TIMEZONE", "UTC"))
	if err != nil {
		log.Warnf("[Config] invalid TIMEZONE %q, falling back to UTC: %v", env.GetEnv("TIMEZONE", ""), err)
		loc = time.UTC
	}

	cfg := &Config{
		BotToken:           strings.TrimSpace(env.GetEnv("BOT_TOKEN", "")),
		TelegramAPIBaseURL: strings.TrimRight(env.GetEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"), "/"),
		GroupIDs:           parseGroupIDs(env.GetEnv("VIP_GROUP_IDS", "")),

		StripeWebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		PricePlanMap:        buildPricePlanMap(),

		GraceDays:          env.GetEnvInt("GRACE_PERIOD_DAYS", 3),
		SweepHour:          env.GetEnvInt("SWEEP_HOUR", 10),
		WarningHour:        env.GetEnvInt("WARNING_HOUR", 9),
		Location:           loc,
		AutoRemovalEnabled: env.GetEnvBool("AUTO_REMOVAL_ENABLED", true),

		FallbackInviteEnabled: env.GetEnvBool("FALLBACK_INVITE_ENABLED", false),
		FallbackInviteLink:    strings.TrimSpace(env.GetEnv("FALLBACK_INVITE_LINK", "")),
		InviteTTL:             time.Duration(env.GetEnvInt("INVITE_TTL_HOURS", 24)) * time.Hour,
		InviteCooldown:        time.Duration(env.GetEnvInt("INVITE_COOLDOWN_MINUTES", 10)) * time.Minute,

		RenewalURL: strings.TrimSpace(env.GetEnv("RENEWAL_URL", "")),

		ProcessedEventRetention: time.Duration(env.GetEnvInt("PROCESSED_EVENT_RETENTION_DAYS", 90)) * 24 * time.Hour,

		AdminUser:     env.GetEnv("ADMIN_USER", "admin"),
		AdminPassword: env.GetEnv("ADMIN_PASSWORD", ""),
	}

	if len(cfg.GroupIDs) == 0 {
		log.Warn("[Config] VIP_GROUP_IDS is empty, removal sweep will have no groups to act on")
	}
	if len(cfg.PricePlanMap) == 0 {
		log.Warn("[Config] no PRICE_*_ID configured, plan mapping will rely on the description heuristic")
	}

	return cfg
}

// PlanForPriceID resolves a billing price id to a plan, or "" when unmapped.
func (c *Config) PlanForPriceID(priceID string) string {
	return c.PricePlanMap[strings.TrimSpace(priceID)]
}

func parseGroupIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Warnf("[Config] skipping invalid group id %q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func buildPricePlanMap() map[string]string {
	m := map[string]string{}
	for key, plan := range map[string]string{
		"PRICE_MONTHLY_ID":   models.PlanMonthly,
		"PRICE_QUARTERLY_ID": models.PlanQuarterly,
		"PRICE_ANNUAL_ID":    models.PlanAnnual,
	} {
		if id := strings.TrimSpace(env.GetEnv(key, "")); id != "" {
			m[id] = plan
		}
	}
	return m
}
