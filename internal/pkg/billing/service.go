package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/membergate/membergate/app/models"
	"github.com/membergate/membergate/internal/pkg/cache"
	"github.com/membergate/membergate/internal/pkg/config"
)

// SeenCache is an optional fast path in front of the durable dedup table.
// Misses and errors fall through to the database check.
type SeenCache interface {
	Seen(eventID string) bool
	MarkSeen(eventID string)
}

const seenCacheKeyPrefix = "billing:event_seen:"

type redisSeenCache struct {
	ttl time.Duration
}

// NewRedisSeenCache returns a SeenCache backed by the shared Redis client.
func NewRedisSeenCache(ttl time.Duration) SeenCache {
	return &redisSeenCache{ttl: ttl}
}

func (c *redisSeenCache) Seen(eventID string) bool {
	ok, err := cache.Exists(seenCacheKeyPrefix + eventID)
	if err != nil {
		return false
	}
	return ok
}

func (c *redisSeenCache) MarkSeen(eventID string) {
	if err := cache.Set(seenCacheKeyPrefix+eventID, "1", c.ttl); err != nil {
		log.Warnf("[Billing] seen-cache write failed for %s: %v", eventID, err)
	}
}

// Service folds verified billing events into subscription records.
type Service struct {
	cfg  *config.Config
	repo Repository
	seen SeenCache

	now func() time.Time
}

// NewService creates the billing service. seen may be nil to disable the
// cache fast path (tests, degraded mode).
func NewService(cfg *config.Config, repo Repository, seen SeenCache) *Service {
	return &Service{cfg: cfg, repo: repo, seen: seen, now: time.Now}
}

// ProcessEvent applies one event to at most one subscription record and
// returns the resulting classification. Duplicates are dropped silently with
// ChangeUnchanged. The dedup gate is check-then-record around the write: the
// folds tolerate the rare re-application after a crash in between.
func (s *Service) ProcessEvent(ctx context.Context, ev *Event) (Change, error) {
	_ = ctx

	if s.seen != nil && s.seen.Seen(ev.ID) {
		log.Infof("[Billing] event %s already seen (cache), skipping", ev.ID)
		return ChangeUnchanged, nil
	}

	processed, err := s.repo.AlreadyProcessed(ev.ID)
	if err != nil {
		return ChangeUnchanged, fmt.Errorf("dedup check for event %s: %w", ev.ID, err)
	}
	if processed {
		log.Infof("[Billing] event %s already processed, skipping", ev.ID)
		if s.seen != nil {
			s.seen.MarkSeen(ev.ID)
		}
		return ChangeUnchanged, nil
	}

	var change Change
	switch ev.Kind {
	case EventCheckoutCompleted:
		change, err = s.applyCheckout(ev.Checkout)
	case EventInvoicePaid:
		change, err = s.applyInvoice(ev.Invoice)
	case EventSubscriptionUpdated:
		change, err = s.applyProviderStatus(ev.Subscription, MapProviderStatus(ev.Subscription.Status))
	case EventSubscriptionDeleted:
		change, err = s.applyProviderStatus(ev.Subscription, models.SubscriptionStatusCanceled)
	default:
		log.Infof("[Billing] unhandled event type for %s, recording as processed", ev.ID)
		change = ChangeUnchanged
	}
	if err != nil {
		return ChangeUnchanged, err
	}

	if err := s.repo.RecordProcessed(ev.ID); err != nil {
		return change, fmt.Errorf("record processed event %s: %w", ev.ID, err)
	}
	if s.seen != nil {
		s.seen.MarkSeen(ev.ID)
	}
	return change, nil
}

func (s *Service) applyCheckout(cs *CheckoutSession) (Change, error) {
	email := cs.Email()
	if email == "" {
		log.Warn("[Billing] checkout session without email, dropping event")
		return ChangeUnchanged, nil
	}

	sub, err := s.repo.GetByEmail(email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return ChangeUnchanged, fmt.Errorf("lookup subscription by email: %w", err)
	}

	// Non-subscription checkouts only enrich an existing record; they never
	// create or upgrade one.
	if cs.Mode != "" && cs.Mode != "subscription" {
		if sub == nil {
			log.Infof("[Billing] skipped non-subscription checkout session (mode=%s)", cs.Mode)
			return ChangeUnchanged, nil
		}
		changed := false
		if sub.FullName == "" && cs.Name() != "" {
			sub.FullName = cs.Name()
			changed = true
		}
		if memberID := cs.MemberID(); memberID != "" && sub.TelegramUserID != memberID {
			sub.TelegramUserID = memberID
			changed = true
		}
		if changed {
			sub.UpdatedAt = s.now()
			if err := s.repo.Upsert(sub); err != nil {
				return ChangeUnchanged, fmt.Errorf("enrich subscription: %w", err)
			}
		}
		return ChangeUnchanged, nil
	}

	next, change, err := foldCheckout(sub, cs, s.now())
	if err != nil {
		if errors.Is(err, ErrMissingEmail) {
			log.Warn("[Billing] checkout session without email, dropping event")
			return ChangeUnchanged, nil
		}
		return ChangeUnchanged, err
	}

	if sub == nil || change != ChangeUnchanged || *next != *sub {
		next.UpdatedAt = s.now()
		if err := s.repo.Upsert(next); err != nil {
			return ChangeUnchanged, fmt.Errorf("upsert subscription: %w", err)
		}
	}
	log.Infof("[Billing] checkout applied: email=%s status=%s change=%s", next.Email, next.Status, change)
	return change, nil
}

func (s *Service) applyInvoice(inv *Invoice) (Change, error) {
	sub, err := s.resolveInvoiceTarget(inv)
	if err != nil {
		return ChangeUnchanged, err
	}
	if sub == nil && inv.Email() == "" {
		log.Warn("[Billing] invoice without email and no matching subscription id, dropping event")
		return ChangeUnchanged, nil
	}

	plan := s.cfg.PlanForPriceID(inv.PriceID())
	if plan == models.PlanUnknown {
		if inferred := PlanFromDescription(inv.Description()); inferred != models.PlanUnknown {
			log.Warnf("[Billing] price id %q not mapped, inferred plan %q from description", inv.PriceID(), inferred)
			plan = inferred
		}
	}

	next, change := foldInvoice(sub, inv, plan, s.now())
	next.UpdatedAt = s.now()
	if err := s.repo.Upsert(next); err != nil {
		return ChangeUnchanged, fmt.Errorf("upsert subscription: %w", err)
	}

	expires := "none"
	if next.ExpiresAt != nil {
		expires = next.ExpiresAt.Format(time.RFC3339)
	}
	log.Infof("[Billing] invoice applied: email=%s plan=%s expires=%s change=%s", next.Email, next.Plan, expires, change)
	return change, nil
}

func (s *Service) resolveInvoiceTarget(inv *Invoice) (*models.Subscription, error) {
	if email := inv.Email(); email != "" {
		sub, err := s.repo.GetByEmail(email)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("lookup subscription by email: %w", err)
		}
	}
	if inv.SubscriptionID != "" {
		sub, err := s.repo.GetByStripeSubscriptionID(inv.SubscriptionID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("lookup subscription by stripe id: %w", err)
		}
	}
	return nil, nil
}

func (s *Service) applyProviderStatus(ps *ProviderSubscription, status string) (Change, error) {
	if ps.SubscriptionID == "" {
		log.Warn("[Billing] subscription event without id, dropping event")
		return ChangeUnchanged, nil
	}

	sub, err := s.repo.GetByStripeSubscriptionID(ps.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] no subscription for stripe id %s, dropping status update", ps.SubscriptionID)
			return ChangeUnchanged, nil
		}
		return ChangeUnchanged, fmt.Errorf("lookup subscription by stripe id: %w", err)
	}

	next, change := foldStatus(sub, status)
	if change == ChangeUnchanged && next.Status == sub.Status {
		return change, nil
	}
	next.UpdatedAt = s.now()
	if err := s.repo.Upsert(next); err != nil {
		return ChangeUnchanged, fmt.Errorf("upsert subscription: %w", err)
	}
	log.Infof("[Billing] status applied: email=%s status=%s change=%s", next.Email, next.Status, change)
	return change, nil
}

// TrimProcessedEvents deletes processed-event rows older than the configured
// retention. Housekeeping, invoked by the daily scheduler.
func (s *Service) TrimProcessedEvents() {
	cutoff := s.now().Add(-s.cfg.ProcessedEventRetention)
	n, err := s.repo.TrimProcessedBefore(cutoff)
	if err != nil {
		log.Errorf("[Billing] processed-event trim failed: %v", err)
		return
	}
	if n > 0 {
		log.Infof("[Billing] trimmed %d processed events older than %s", n, cutoff.Format(time.RFC3339))
	}
}
