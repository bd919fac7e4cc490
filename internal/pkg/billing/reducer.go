package billing

import (
	"errors"
	"time"

	"github.com/membergate/membergate/app/models"
)

// Change classifies the effect a folded event had on a subscription record.
type Change string

const (
	ChangeCreated     Change = "created"
	ChangeExtended    Change = "extended"
	ChangeActivated   Change = "activated"
	ChangeDeactivated Change = "deactivated"
	ChangeUnchanged   Change = "unchanged"
)

// ErrMissingEmail is returned when a creation event carries no email to key
// the record on. The event is dropped with a warning, nothing is mutated.
var ErrMissingEmail = errors.New("billing event without email")

// foldCheckout applies a completed checkout session. Pass sub == nil when no
// record exists for the email: a new one is created, active when payment was
// captured, pending otherwise, with no expiry yet (the billing-period event
// sets it). On an existing record only empty fields are filled and only a
// pending record is upgraded to active; active and terminal records are
// never downgraded here.
func foldCheckout(sub *models.Subscription, cs *CheckoutSession, now time.Time) (*models.Subscription, Change, error) {
	email := cs.Email()
	if email == "" {
		return nil, ChangeUnchanged, ErrMissingEmail
	}

	if sub == nil {
		status := models.SubscriptionStatusPending
		if cs.Paid() {
			status = models.SubscriptionStatusActive
		}
		created := &models.Subscription{
			Email:                email,
			FullName:             cs.Name(),
			TelegramUserID:       cs.MemberID(),
			StripeCustomerID:     cs.CustomerID,
			StripeSessionID:      cs.SessionID,
			StripeSubscriptionID: cs.SubscriptionID,
			Status:               status,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		return created, ChangeCreated, nil
	}

	next := *sub
	change := ChangeUnchanged

	if next.FullName == "" && cs.Name() != "" {
		next.FullName = cs.Name()
	}
	if memberID := cs.MemberID(); memberID != "" {
		next.TelegramUserID = memberID
	}
	if next.StripeCustomerID == "" && cs.CustomerID != "" {
		next.StripeCustomerID = cs.CustomerID
	}
	if next.StripeSessionID == "" && cs.SessionID != "" {
		next.StripeSessionID = cs.SessionID
	}
	if next.StripeSubscriptionID == "" && cs.SubscriptionID != "" {
		next.StripeSubscriptionID = cs.SubscriptionID
	}
	if cs.Paid() && next.Status == models.SubscriptionStatusPending {
		next.Status = models.SubscriptionStatusActive
		change = ChangeActivated
	}

	return &next, change, nil
}

// foldInvoice applies a paid billing period. The event is authoritative for
// "money changed hands": status becomes active even on a previously removed
// record (reactivation). Expiry prefers the upstream period end and is
// monotonic (a later event never shortens a known expiry); without an
// authoritative end the plan duration extends from max(now, current expiry).
func foldInvoice(sub *models.Subscription, inv *Invoice, plan string, now time.Time) (*models.Subscription, Change) {
	periodEnd := inv.PeriodEnd()

	if sub == nil {
		created := &models.Subscription{
			Email:                inv.Email(),
			StripeCustomerID:     inv.CustomerID,
			StripeSubscriptionID: inv.SubscriptionID,
			Plan:                 plan,
			Status:               models.SubscriptionStatusActive,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		switch {
		case periodEnd != nil:
			created.ExpiresAt = periodEnd
		case PlanDuration(plan) > 0:
			exp := now.Add(PlanDuration(plan))
			created.ExpiresAt = &exp
		}
		return created, ChangeCreated
	}

	next := *sub
	change := ChangeUnchanged

	if next.StripeSubscriptionID == "" && inv.SubscriptionID != "" {
		next.StripeSubscriptionID = inv.SubscriptionID
	}
	if next.StripeCustomerID == "" && inv.CustomerID != "" {
		next.StripeCustomerID = inv.CustomerID
	}
	if plan != models.PlanUnknown && next.Plan != plan {
		next.Plan = plan
	}
	if next.Status != models.SubscriptionStatusActive {
		next.Status = models.SubscriptionStatusActive
		change = ChangeActivated
	}

	switch {
	case periodEnd != nil:
		if next.ExpiresAt == nil || periodEnd.After(*next.ExpiresAt) {
			next.ExpiresAt = periodEnd
			if change == ChangeUnchanged {
				change = ChangeExtended
			}
		}
	case PlanDuration(plan) > 0:
		base := now
		if next.ExpiresAt != nil && next.ExpiresAt.After(now) {
			base = *next.ExpiresAt
		}
		exp := base.Add(PlanDuration(plan))
		next.ExpiresAt = &exp
		if change == ChangeUnchanged {
			change = ChangeExtended
		}
	}

	return &next, change
}

// foldStatus applies a mapped provider status from a subscription lifecycle
// event. Terminal records are left untouched: only a paid-period event
// reactivates a removed member. Expiry is never modified here; the sweep
// decides removal timing from expires_at, so a cancellation before the paid
// period ends does not cut access short.
func foldStatus(sub *models.Subscription, status string) (*models.Subscription, Change) {
	if sub.IsTerminal() {
		return sub, ChangeUnchanged
	}
	if sub.Status == status {
		return sub, ChangeUnchanged
	}

	next := *sub
	prev := next.Status
	next.Status = status

	switch {
	case status == models.SubscriptionStatusActive:
		return &next, ChangeActivated
	case prev == models.SubscriptionStatusActive:
		return &next, ChangeDeactivated
	default:
		return &next, ChangeUnchanged
	}
}
