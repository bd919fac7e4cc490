package sweep

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membergate/membergate/app/models"
	"github.com/membergate/membergate/internal/pkg/config"
)

var sweepNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	candidates  []models.Subscription
	inGrace     []models.Subscription
	warnings    []models.Subscription
	whitelisted map[string]bool
	sentLedger  map[string]bool

	savedSubs    []models.Subscription
	removalLogs  []*models.RemovalLog
	warningLogs  []*models.WarningLog
	warningCalls [][2]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		whitelisted: map[string]bool{},
		sentLedger:  map[string]bool{},
	}
}

func (s *fakeStore) FindRemovalCandidates(now time.Time, graceDays int) ([]models.Subscription, error) {
	return s.candidates, nil
}

func (s *fakeStore) FindInGracePeriod(now time.Time, graceDays int) ([]models.Subscription, error) {
	return s.inGrace, nil
}

func (s *fakeStore) FindWarningCandidates(start, end time.Time) ([]models.Subscription, error) {
	s.warningCalls = append(s.warningCalls, [2]time.Time{start, end})
	var out []models.Subscription
	for _, sub := range s.warnings {
		if sub.ExpiresAt != nil && !sub.ExpiresAt.Before(start) && sub.ExpiresAt.Before(end) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveSubscription(sub *models.Subscription) error {
	s.savedSubs = append(s.savedSubs, *sub)
	return nil
}

func (s *fakeStore) IsWhitelisted(telegramUserID string) (bool, error) {
	return s.whitelisted[telegramUserID], nil
}

func (s *fakeStore) SaveRemovalLog(entry *models.RemovalLog) error {
	for _, existing := range s.removalLogs {
		if existing == entry {
			return nil
		}
	}
	s.removalLogs = append(s.removalLogs, entry)
	return nil
}

func (s *fakeStore) WarningAlreadySent(subscriptionID uint, leadDays int) (bool, error) {
	return s.sentLedger[fmt.Sprintf("%d/%d", subscriptionID, leadDays)], nil
}

func (s *fakeStore) RecordWarning(entry *models.WarningLog) error {
	s.warningLogs = append(s.warningLogs, entry)
	if entry.Sent {
		s.sentLedger[fmt.Sprintf("%d/%d", entry.SubscriptionID, entry.LeadDays)] = true
	}
	return nil
}

type fakeDirectory struct {
	failGroups map[int64]error
	removals   [][2]int64
}

func (d *fakeDirectory) RemoveMember(ctx context.Context, groupID, memberID int64) error {
	if err, ok := d.failGroups[groupID]; ok {
		return err
	}
	d.removals = append(d.removals, [2]int64{groupID, memberID})
	return nil
}

func (d *fakeDirectory) CreateInvite(ctx context.Context, groupID int64, ttl time.Duration, maxUses int) (string, error) {
	return "https://t.me/+fake", nil
}

type fakeNotifier struct {
	fail     bool
	messages []string
}

func (n *fakeNotifier) SendDirectMessage(ctx context.Context, memberID int64, text string) error {
	if n.fail {
		return errors.New("blocked by user")
	}
	n.messages = append(n.messages, text)
	return nil
}

func newTestEngine(store Store, dir Directory, notif Notifier) *Engine {
	cfg := &config.Config{
		GroupIDs:           []int64{-100, -200},
		GraceDays:          3,
		Location:           time.UTC,
		AutoRemovalEnabled: true,
		RenewalURL:         "https://example.com/renew",
	}
	e := NewEngine(cfg, store, dir, notif)
	e.now = func() time.Time { return sweepNow }
	return e
}

func expiredSub(email, memberID string) models.Subscription {
	expiry := sweepNow.AddDate(0, 0, -5)
	return models.Subscription{
		ID:             1,
		Email:          email,
		TelegramUserID: memberID,
		Status:         models.SubscriptionStatusActive,
		ExpiresAt:      &expiry,
	}
}

func TestRemovalSweepRemovesAndLogs(t *testing.T) {
	store := newFakeStore()
	store.candidates = []models.Subscription{expiredSub("alice@example.com", "111")}
	dir := &fakeDirectory{}
	notif := &fakeNotifier{}
	e := newTestEngine(store, dir, notif)

	summary, err := e.RunRemovalSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Removed)

	require.Len(t, dir.removals, 2)
	assert.Equal(t, [2]int64{-100, 111}, dir.removals[0])
	assert.Equal(t, [2]int64{-200, 111}, dir.removals[1])

	require.Len(t, store.savedSubs, 1)
	assert.Equal(t, models.SubscriptionStatusAutoRemoved, store.savedSubs[0].Status)

	require.Len(t, store.removalLogs, 1)
	entry := store.removalLogs[0]
	assert.Equal(t, models.RemovalStatusSuccess, entry.Status)
	assert.Equal(t, models.RemovalReasonExpired, entry.Reason)
	assert.Equal(t, []int64{-100, -200}, entry.GroupsRemoved())
	assert.True(t, entry.Notified)
	assert.Equal(t, summary.RunID, entry.SweepRunID)

	require.Len(t, notif.messages, 1)
	assert.Contains(t, notif.messages[0], "expired")
	assert.Contains(t, notif.messages[0], "https://example.com/renew")
}

func TestRemovalSweepWhitelistWins(t *testing.T) {
	store := newFakeStore()
	sub := expiredSub("alice@example.com", "111")
	store.candidates = []models.Subscription{sub}
	store.whitelisted["111"] = true
	dir := &fakeDirectory{}
	e := newTestEngine(store, dir, &fakeNotifier{})

	summary, err := e.RunRemovalSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Whitelisted)
	assert.Equal(t, 0, summary.Removed)
	assert.Empty(t, dir.removals)
	assert.Empty(t, store.savedSubs, "whitelisted members keep their status")

	require.Len(t, store.removalLogs, 1)
	assert.Equal(t, models.RemovalStatusWhitelisted, store.removalLogs[0].Status)
}

func TestRemovalSweepMissingAndInvalidMemberID(t *testing.T) {
	store := newFakeStore()
	missing := expiredSub("missing@example.com", "")
	invalid := expiredSub("invalid@example.com", "@alice")
	invalid.ID = 2
	store.candidates = []models.Subscription{missing, invalid}
	dir := &fakeDirectory{}
	e := newTestEngine(store, dir, &fakeNotifier{})

	summary, err := e.RunRemovalSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NoMemberID)
	assert.Equal(t, 1, summary.InvalidID)
	assert.Empty(t, dir.removals)
	assert.Empty(t, store.savedSubs)

	require.Len(t, store.removalLogs, 2)
	assert.Equal(t, models.RemovalStatusNoMemberID, store.removalLogs[0].Status)
	assert.Equal(t, models.RemovalStatusInvalidMemberID, store.removalLogs[1].Status)
}

func TestRemovalSweepPartialGroupFailureStillCounts(t *testing.T) {
	store := newFakeStore()
	store.candidates = []models.Subscription{expiredSub("alice@example.com", "111")}
	dir := &fakeDirectory{failGroups: map[int64]error{-200: errors.New("bot not admin")}}
	e := newTestEngine(store, dir, &fakeNotifier{})

	summary, err := e.RunRemovalSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Removed)
	assert.Equal(t, 0, summary.Failed)

	require.Len(t, store.removalLogs, 1)
	entry := store.removalLogs[0]
	assert.Equal(t, models.RemovalStatusSuccess, entry.Status)
	assert.Equal(t, []int64{-100}, entry.GroupsRemoved())
	assert.Contains(t, entry.ErrorText, "group -200")

	require.Len(t, store.savedSubs, 1)
	assert.Equal(t, models.SubscriptionStatusAutoRemoved, store.savedSubs[0].Status)
}

func TestRemovalSweepAllGroupsFailKeepsStatus(t *testing.T) {
	store := newFakeStore()
	store.candidates = []models.Subscription{expiredSub("alice@example.com", "111")}
	dir := &fakeDirectory{failGroups: map[int64]error{
		-100: errors.New("kicked"),
		-200: errors.New("kicked"),
	}}
	e := newTestEngine(store, dir, &fakeNotifier{})

	summary, err := e.RunRemovalSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Removed)
	assert.Empty(t, store.savedSubs, "status must stay for a retry on the next run")

	require.Len(t, store.removalLogs, 1)
	assert.Equal(t, models.RemovalStatusFailed, store.removalLogs[0].Status)
}

func TestRemovalSweepNotifyFailureDoesNotBlockRemoval(t *testing.T) {
	store := newFakeStore()
	store.candidates = []models.Subscription{expiredSub("alice@example.com", "111")}
	e := newTestEngine(store, &fakeDirectory{}, &fakeNotifier{fail: true})

	summary, err := e.RunRemovalSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Removed)

	require.Len(t, store.removalLogs, 1)
	assert.Equal(t, models.RemovalStatusSuccess, store.removalLogs[0].Status)
	assert.False(t, store.removalLogs[0].Notified)
}

func TestRemovalSweepCancelledReason(t *testing.T) {
	store := newFakeStore()
	sub := expiredSub("alice@example.com", "111")
	sub.Status = models.SubscriptionStatusCanceled
	store.candidates = []models.Subscription{sub}
	notif := &fakeNotifier{}
	e := newTestEngine(store, &fakeDirectory{}, notif)

	_, err := e.RunRemovalSweep(context.Background())
	require.NoError(t, err)

	require.Len(t, store.removalLogs, 1)
	assert.Equal(t, models.RemovalReasonCancelled, store.removalLogs[0].Reason)
	require.Len(t, notif.messages, 1)
	assert.Contains(t, notif.messages[0], "cancelled")
}

func TestRemovalSweepDisabled(t *testing.T) {
	store := newFakeStore()
	store.candidates = []models.Subscription{expiredSub("alice@example.com", "111")}
	dir := &fakeDirectory{}
	e := newTestEngine(store, dir, &fakeNotifier{})
	e.cfg.AutoRemovalEnabled = false

	summary, err := e.RunRemovalSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Candidates)
	assert.Empty(t, dir.removals)
}

func TestRemovalSweepRejectsOverlap(t *testing.T) {
	e := newTestEngine(newFakeStore(), &fakeDirectory{}, &fakeNotifier{})

	e.mu.Lock()
	_, err := e.RunRemovalSweep(context.Background())
	e.mu.Unlock()

	assert.ErrorIs(t, err, ErrSweepInProgress)
}

func TestRemovalSweepReportsGracePeriod(t *testing.T) {
	store := newFakeStore()
	store.inGrace = []models.Subscription{expiredSub("grace@example.com", "222")}
	dir := &fakeDirectory{}
	e := newTestEngine(store, dir, &fakeNotifier{})

	summary, err := e.RunRemovalSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.InGrace)
	assert.Equal(t, 0, summary.Candidates)
	assert.Empty(t, dir.removals, "members inside the grace period are never touched")
}
