package billing

import (
	"strings"

	"github.com/membergate/membergate/app/models"
)

// MapProviderStatus translates the upstream subscription status vocabulary
// into the local one. Unknown values map to pending.
func MapProviderStatus(providerStatus string) string {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "active", "trialing":
		return models.SubscriptionStatusActive
	case "past_due":
		return models.SubscriptionStatusPastDue
	case "canceled", "unpaid", "incomplete_expired":
		return models.SubscriptionStatusCanceled
	case "incomplete":
		return models.SubscriptionStatusPending
	default:
		return models.SubscriptionStatusPending
	}
}
