package sweep

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/membergate/membergate/app/models"
)

// warningLeadDays are the milestones before expiry at which a renewal
// warning is sent, each at most once per subscription.
var warningLeadDays = []int{7, 3, 1, 0}

// WarningSummary reports the outcome of one advance-warning pass.
type WarningSummary struct {
	Selected int
	Sent     int
	Skipped  int
	Failed   int
}

// RunWarningPass sends advance renewal warnings for every configured lead
// time. A (subscription, lead) milestone that was already sent is skipped,
// so restarts and repeated passes never double-notify.
func (e *Engine) RunWarningPass(ctx context.Context) (*WarningSummary, error) {
	summary := &WarningSummary{}
	now := e.now().In(e.cfg.Location)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.cfg.Location)

	for _, lead := range warningLeadDays {
		start := dayStart.AddDate(0, 0, lead)
		end := start.AddDate(0, 0, 1)

		candidates, err := e.store.FindWarningCandidates(start, end)
		if err != nil {
			log.Errorf("[Warnings] selection for lead %dd failed: %v", lead, err)
			continue
		}
		summary.Selected += len(candidates)

		for i := range candidates {
			e.warnCandidate(ctx, summary, &candidates[i], lead)
		}
	}

	log.Infof("[Warnings] pass finished: selected=%d sent=%d skipped=%d failed=%d",
		summary.Selected, summary.Sent, summary.Skipped, summary.Failed)
	return summary, nil
}

func (e *Engine) warnCandidate(ctx context.Context, summary *WarningSummary, sub *models.Subscription, lead int) {
	sent, err := e.store.WarningAlreadySent(sub.ID, lead)
	if err != nil {
		log.Errorf("[Warnings] ledger check for %s lead %dd failed: %v", sub.Email, lead, err)
		summary.Failed++
		return
	}
	if sent {
		summary.Skipped++
		return
	}

	memberID, err := strconv.ParseInt(sub.TelegramUserID, 10, 64)
	if err != nil {
		log.Warnf("[Warnings] %s has invalid member id %q", sub.Email, sub.TelegramUserID)
		summary.Failed++
		return
	}

	entry := &models.WarningLog{SubscriptionID: sub.ID, LeadDays: lead}
	if err := e.notif.SendDirectMessage(ctx, memberID, e.warningMessage(lead)); err != nil {
		log.Warnf("[Warnings] warning to %s (lead %dd) failed: %v", sub.Email, lead, err)
		summary.Failed++
		entry.ErrorText = err.Error()
	} else {
		summary.Sent++
		entry.Sent = true
	}

	if err := e.store.RecordWarning(entry); err != nil {
		log.Errorf("[Warnings] ledger write for %s lead %dd failed: %v", sub.Email, lead, err)
	}
}

func (e *Engine) warningMessage(lead int) string {
	var msg string
	switch lead {
	case 0:
		msg = "Your VIP subscription expires today."
	case 1:
		msg = "Your VIP subscription expires tomorrow."
	default:
		msg = fmt.Sprintf("Your VIP subscription expires in %d days.", lead)
	}
	if e.cfg.RenewalURL != "" {
		msg += " Renew here to keep your access: " + e.cfg.RenewalURL
	}
	return msg
}
