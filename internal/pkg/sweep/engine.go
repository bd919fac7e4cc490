package sweep

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/membergate/membergate/app/models"
	"github.com/membergate/membergate/internal/pkg/config"
)

// Directory is the membership directory capability: removing members from
// managed groups and minting invite handles.
type Directory interface {
	RemoveMember(ctx context.Context, groupID, memberID int64) error
	CreateInvite(ctx context.Context, groupID int64, ttl time.Duration, maxUses int) (string, error)
}

// Notifier delivers direct messages to members.
type Notifier interface {
	SendDirectMessage(ctx context.Context, memberID int64, text string) error
}

// ErrSweepInProgress is returned when a sweep trigger overlaps a running
// sweep. The trigger is dropped, not queued.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Summary reports the outcome of one removal sweep run.
type Summary struct {
	RunID       string
	Candidates  int
	Removed     int
	Whitelisted int
	NoMemberID  int
	InvalidID   int
	Failed      int
	InGrace     int
}

// Engine runs the grace-period removal sweep and the advance-warning pass.
type Engine struct {
	cfg   *config.Config
	store Store
	dir   Directory
	notif Notifier

	mu  sync.Mutex
	now func() time.Time
}

// NewEngine creates a sweep engine.
func NewEngine(cfg *config.Config, store Store, dir Directory, notif Notifier) *Engine {
	return &Engine{cfg: cfg, store: store, dir: dir, notif: notif, now: time.Now}
}

// RunRemovalSweep evaluates every subscription once and removes members whose
// paid access has lapsed. Only one sweep runs at a time; an overlapping call
// returns ErrSweepInProgress. Per-candidate failures are logged and retried
// on the next run, they never abort the sweep.
func (e *Engine) RunRemovalSweep(ctx context.Context) (*Summary, error) {
	if !e.mu.TryLock() {
		log.Warn("[Sweep] removal sweep already running, dropping trigger")
		return nil, ErrSweepInProgress
	}
	defer e.mu.Unlock()

	summary := &Summary{RunID: uuid.NewString()}
	now := e.now()

	if !e.cfg.AutoRemovalEnabled {
		log.Info("[Sweep] auto-removal disabled, skipping removal sweep")
		return summary, nil
	}

	if inGrace, err := e.store.FindInGracePeriod(now, e.cfg.GraceDays); err != nil {
		log.Errorf("[Sweep] grace-period query failed: %v", err)
	} else {
		summary.InGrace = len(inGrace)
	}

	candidates, err := e.store.FindRemovalCandidates(now, e.cfg.GraceDays)
	if err != nil {
		return summary, fmt.Errorf("select removal candidates: %w", err)
	}
	summary.Candidates = len(candidates)
	log.Infof("[Sweep] run %s: %d removal candidates, %d in grace period", summary.RunID, summary.Candidates, summary.InGrace)

	for i := range candidates {
		e.processCandidate(ctx, summary, &candidates[i])
	}

	log.Infof("[Sweep] run %s finished: removed=%d whitelisted=%d no_member_id=%d invalid=%d failed=%d",
		summary.RunID, summary.Removed, summary.Whitelisted, summary.NoMemberID, summary.InvalidID, summary.Failed)
	return summary, nil
}

func (e *Engine) processCandidate(ctx context.Context, summary *Summary, sub *models.Subscription) {
	reason := models.RemovalReasonExpired
	if sub.Status == models.SubscriptionStatusCanceled {
		reason = models.RemovalReasonCancelled
	}

	entry := &models.RemovalLog{
		SweepRunID:     summary.RunID,
		Email:          sub.Email,
		TelegramUserID: sub.TelegramUserID,
		Reason:         reason,
		Status:         models.RemovalStatusProcessing,
	}
	entry.SetGroupsRemoved(nil)
	if err := e.store.SaveRemovalLog(entry); err != nil {
		log.Errorf("[Sweep] could not open log entry for %s: %v", sub.Email, err)
		summary.Failed++
		return
	}

	finish := func(status, errText string) {
		entry.Status = status
		entry.ErrorText = errText
		if err := e.store.SaveRemovalLog(entry); err != nil {
			log.Errorf("[Sweep] could not finalize log entry for %s: %v", sub.Email, err)
		}
	}

	// Whitelist wins over every other rule.
	whitelisted, err := e.store.IsWhitelisted(sub.TelegramUserID)
	if err != nil {
		log.Errorf("[Sweep] whitelist check for %s failed: %v", sub.Email, err)
		summary.Failed++
		finish(models.RemovalStatusError, fmt.Sprintf("whitelist check: %v", err))
		return
	}
	if whitelisted {
		log.Infof("[Sweep] %s is whitelisted, skipping removal", sub.Email)
		summary.Whitelisted++
		finish(models.RemovalStatusWhitelisted, "")
		return
	}

	// Without a member id there is nothing to act on; the record keeps its
	// status so a manual link-and-retry stays possible.
	if sub.TelegramUserID == "" {
		log.Warnf("[Sweep] %s has no member id, cannot remove", sub.Email)
		summary.NoMemberID++
		finish(models.RemovalStatusNoMemberID, "")
		return
	}

	memberID, err := strconv.ParseInt(sub.TelegramUserID, 10, 64)
	if err != nil {
		log.Warnf("[Sweep] %s has invalid member id %q", sub.Email, sub.TelegramUserID)
		summary.InvalidID++
		finish(models.RemovalStatusInvalidMemberID, fmt.Sprintf("member id %q is not numeric", sub.TelegramUserID))
		return
	}

	// Each group is attempted independently; one failure never blocks the
	// others.
	var removedFrom []int64
	var groupErrs []string
	for _, groupID := range e.cfg.GroupIDs {
		if err := e.dir.RemoveMember(ctx, groupID, memberID); err != nil {
			log.Warnf("[Sweep] removal of %s from group %d failed: %v", sub.Email, groupID, err)
			groupErrs = append(groupErrs, fmt.Sprintf("group %d: %v", groupID, err))
			continue
		}
		removedFrom = append(removedFrom, groupID)
	}

	if len(removedFrom) == 0 {
		summary.Failed++
		errText := "no groups configured"
		if len(groupErrs) > 0 {
			errText = strings.Join(groupErrs, "; ")
		}
		finish(models.RemovalStatusFailed, errText)
		return
	}

	// Removed from at least one group counts as removed. The renewal notice
	// is best-effort and never blocks the status transition.
	entry.SetGroupsRemoved(removedFrom)
	if err := e.notif.SendDirectMessage(ctx, memberID, e.renewalMessage(reason)); err != nil {
		log.Warnf("[Sweep] renewal notice to %s failed: %v", sub.Email, err)
		groupErrs = append(groupErrs, fmt.Sprintf("notify: %v", err))
	} else {
		entry.Notified = true
	}

	sub.Status = models.SubscriptionStatusAutoRemoved
	if err := e.store.SaveSubscription(sub); err != nil {
		log.Errorf("[Sweep] status update for %s failed: %v", sub.Email, err)
		summary.Failed++
		finish(models.RemovalStatusError, fmt.Sprintf("status update: %v", err))
		return
	}

	summary.Removed++
	finish(models.RemovalStatusSuccess, strings.Join(groupErrs, "; "))
	log.Infof("[Sweep] removed %s from %d group(s), notified=%v", sub.Email, len(removedFrom), entry.Notified)
}

func (e *Engine) renewalMessage(reason string) string {
	var b strings.Builder
	if reason == models.RemovalReasonCancelled {
		b.WriteString("Your subscription was cancelled and your VIP access has ended.")
	} else {
		b.WriteString("Your subscription has expired and your VIP access has ended.")
	}
	if e.cfg.RenewalURL != "" {
		b.WriteString(" Renew here to get back in: ")
		b.WriteString(e.cfg.RenewalURL)
	}
	return b.String()
}
