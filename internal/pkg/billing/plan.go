package billing

import (
	"strings"
	"time"

	"github.com/membergate/membergate/app/models"
)

// planDurations are the fixed extension windows applied when an invoice does
// not carry an authoritative period end.
var planDurations = map[string]time.Duration{
	models.PlanMonthly:   30 * 24 * time.Hour,
	models.PlanQuarterly: 90 * 24 * time.Hour,
	models.PlanAnnual:    365 * 24 * time.Hour,
}

// PlanDuration returns the fixed duration for a plan, 0 for unknown plans.
func PlanDuration(plan string) time.Duration {
	return planDurations[plan]
}

// PlanFromDescription infers a plan from a free-text line description.
// Best-effort fallback for invoices whose price id is not in the configured
// mapping; callers log when this path is taken so a missing price mapping
// does not go unnoticed.
func PlanFromDescription(description string) string {
	desc := strings.ToLower(description)
	switch {
	case strings.Contains(desc, "quarter"):
		return models.PlanQuarterly
	case strings.Contains(desc, "annual"), strings.Contains(desc, "year"):
		return models.PlanAnnual
	case strings.Contains(desc, "month"):
		return models.PlanMonthly
	default:
		return models.PlanUnknown
	}
}
