package config

import (
	"testing"
	"time"

	"github.com/membergate/membergate/app/models"
)

func TestParseGroupIDs(t *testing.T) {
	tests := []struct {
		in   string
		want []int64
	}{
		{in: "", want: nil},
		{in: "-1001234567890", want: []int64{-1001234567890}},
		{in: "-100, -200 ,-300", want: []int64{-100, -200, -300}},
		{in: "-100,abc,-200", want: []int64{-100, -200}},
		{in: " , ,", want: nil},
	}

	for _, tt := range tests {
		got := parseGroupIDs(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("parseGroupIDs(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("parseGroupIDs(%q)[%d] = %d, want %d", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestPlanForPriceID(t *testing.T) {
	cfg := &Config{PricePlanMap: map[string]string{"price_m": models.PlanMonthly}}

	if got := cfg.PlanForPriceID("price_m"); got != models.PlanMonthly {
		t.Fatalf("PlanForPriceID = %q", got)
	}
	if got := cfg.PlanForPriceID(" price_m "); got != models.PlanMonthly {
		t.Fatalf("PlanForPriceID with whitespace = %q", got)
	}
	if got := cfg.PlanForPriceID("price_unknown"); got != models.PlanUnknown {
		t.Fatalf("unmapped price returned %q", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.GraceDays != 3 {
		t.Fatalf("GraceDays = %d, want 3", cfg.GraceDays)
	}
	if cfg.SweepHour != 10 || cfg.WarningHour != 9 {
		t.Fatalf("hours = %d/%d, want 10/9", cfg.SweepHour, cfg.WarningHour)
	}
	if !cfg.AutoRemovalEnabled {
		t.Fatalf("auto-removal must default to enabled")
	}
	if cfg.InviteTTL != 24*time.Hour {
		t.Fatalf("InviteTTL = %v", cfg.InviteTTL)
	}
	if cfg.InviteCooldown != 10*time.Minute {
		t.Fatalf("InviteCooldown = %v", cfg.InviteCooldown)
	}
	if cfg.ProcessedEventRetention != 90*24*time.Hour {
		t.Fatalf("ProcessedEventRetention = %v", cfg.ProcessedEventRetention)
	}
	if cfg.Location == nil {
		t.Fatalf("Location must never be nil")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VIP_GROUP_IDS", "-100,-200")
	t.Setenv("PRICE_MONTHLY_ID", "price_m")
	t.Setenv("PRICE_ANNUAL_ID", "price_a")
	t.Setenv("GRACE_PERIOD_DAYS", "5")
	t.Setenv("AUTO_REMOVAL_ENABLED", "off")

	cfg := Load()

	if len(cfg.GroupIDs) != 2 {
		t.Fatalf("GroupIDs = %v", cfg.GroupIDs)
	}
	if cfg.GraceDays != 5 {
		t.Fatalf("GraceDays = %d", cfg.GraceDays)
	}
	if cfg.AutoRemovalEnabled {
		t.Fatalf("AUTO_REMOVAL_ENABLED=off not honored")
	}
	if cfg.PlanForPriceID("price_a") != models.PlanAnnual {
		t.Fatalf("annual price not mapped")
	}
	if cfg.PlanForPriceID("price_m") != models.PlanMonthly {
		t.Fatalf("monthly price not mapped")
	}
}
