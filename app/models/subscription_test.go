package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM  "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestSubscriptionIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{status: SubscriptionStatusPending, want: false},
		{status: SubscriptionStatusActive, want: false},
		{status: SubscriptionStatusPastDue, want: false},
		{status: SubscriptionStatusCanceled, want: false},
		{status: SubscriptionStatusAutoRemoved, want: true},
		{status: SubscriptionStatusManuallyRemoved, want: true},
	}

	for _, tt := range tests {
		sub := &Subscription{Status: tt.status}
		assert.Equal(t, tt.want, sub.IsTerminal(), "status %q", tt.status)
	}
}

func TestRemovalLogGroupsRoundTrip(t *testing.T) {
	entry := &RemovalLog{}

	entry.SetGroupsRemoved(nil)
	assert.Equal(t, "[]", entry.GroupsRemovedJSON)
	assert.Empty(t, entry.GroupsRemoved())

	entry.SetGroupsRemoved([]int64{-100, -200})
	assert.Equal(t, []int64{-100, -200}, entry.GroupsRemoved())
}
