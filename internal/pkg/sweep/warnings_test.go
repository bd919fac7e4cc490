package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membergate/membergate/app/models"
)

func warningSub(id uint, email string, expiresIn time.Duration) models.Subscription {
	expiry := sweepNow.Add(expiresIn)
	return models.Subscription{
		ID:             id,
		Email:          email,
		TelegramUserID: "111",
		Status:         models.SubscriptionStatusActive,
		ExpiresAt:      &expiry,
	}
}

func TestWarningPassQueriesEachLeadWindow(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store, &fakeDirectory{}, &fakeNotifier{})

	_, err := e.RunWarningPass(context.Background())
	require.NoError(t, err)

	require.Len(t, store.warningCalls, 4)
	dayStart := time.Date(sweepNow.Year(), sweepNow.Month(), sweepNow.Day(), 0, 0, 0, 0, time.UTC)
	for i, lead := range []int{7, 3, 1, 0} {
		wantStart := dayStart.AddDate(0, 0, lead)
		assert.Equal(t, wantStart, store.warningCalls[i][0], "window start for lead %d", lead)
		assert.Equal(t, wantStart.AddDate(0, 0, 1), store.warningCalls[i][1], "window end for lead %d", lead)
	}
}

func TestWarningPassSendsOncePerMilestone(t *testing.T) {
	store := newFakeStore()
	store.warnings = []models.Subscription{warningSub(1, "alice@example.com", 3*24*time.Hour)}
	notif := &fakeNotifier{}
	e := newTestEngine(store, &fakeDirectory{}, notif)

	summary, err := e.RunWarningPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	require.Len(t, notif.messages, 1)
	assert.Contains(t, notif.messages[0], "3 days")

	// Second pass on the same day skips the already-sent milestone.
	summary, err = e.RunWarningPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Sent)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, notif.messages, 1)
}

func TestWarningPassExpiryTodayMessage(t *testing.T) {
	store := newFakeStore()
	store.warnings = []models.Subscription{warningSub(1, "alice@example.com", 2*time.Hour)}
	notif := &fakeNotifier{}
	e := newTestEngine(store, &fakeDirectory{}, notif)

	summary, err := e.RunWarningPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	require.Len(t, notif.messages, 1)
	assert.Contains(t, notif.messages[0], "today")
	assert.Contains(t, notif.messages[0], "https://example.com/renew")
}

func TestWarningPassRecordsSendFailure(t *testing.T) {
	store := newFakeStore()
	store.warnings = []models.Subscription{warningSub(1, "alice@example.com", 24 * time.Hour)}
	e := newTestEngine(store, &fakeDirectory{}, &fakeNotifier{fail: true})

	summary, err := e.RunWarningPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Sent)

	require.Len(t, store.warningLogs, 1)
	entry := store.warningLogs[0]
	assert.False(t, entry.Sent)
	assert.Contains(t, entry.ErrorText, "blocked")

	// A failed milestone is retried on the next pass.
	summary, err = e.RunWarningPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
}

func TestWarningPassInvalidMemberID(t *testing.T) {
	store := newFakeStore()
	sub := warningSub(1, "alice@example.com", 24*time.Hour)
	sub.TelegramUserID = "not-a-number"
	store.warnings = []models.Subscription{sub}
	notif := &fakeNotifier{}
	e := newTestEngine(store, &fakeDirectory{}, notif)

	summary, err := e.RunWarningPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, notif.messages)
}
