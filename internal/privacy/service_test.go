package privacy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/core-view/internal/database"
)

type fakeSessions struct {
	mu      sync.Mutex
	deleted []string
	cutoffs []time.Time
	err     error
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSessions) PurgeInactive(_ context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return 2, nil
}

func (f *fakeSessions) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

type fakeRetention struct {
	stats database.SessionStats
}

func (f *fakeRetention) GetSessionStats(context.Context) (*database.SessionStats, error) {
	return &f.stats, nil
}

func TestDeleteSessionData(t *testing.T) {
	sessions := &fakeSessions{}
	ps := NewService(sessions, &fakeRetention{}, 0, nil)

	require.NoError(t, ps.DeleteSessionData(context.Background(), "abc"))
	assert.Equal(t, []string{"abc"}, sessions.deleted)

	sessions.err = database.ErrSessionNotFound
	assert.ErrorIs(t, ps.DeleteSessionData(context.Background(), "abc"), database.ErrSessionNotFound)
}

func TestCleanupInactiveUsesRetentionWindow(t *testing.T) {
	sessions := &fakeSessions{}
	ps := NewService(sessions, &fakeRetention{}, 30, nil)
	now := time.Date(2026, 6, 30, 8, 0, 0, 0, time.UTC)
	ps.now = func() time.Time { return now }

	n, err := ps.CleanupInactive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, sessions.cutoffs, 1)
	assert.Equal(t, time.Date(2026, 5, 31, 8, 0, 0, 0, time.UTC), sessions.cutoffs[0])
}

func TestDefaultRetention(t *testing.T) {
	ps := NewService(&fakeSessions{}, &fakeRetention{}, -1, nil)
	assert.Equal(t, DefaultRetentionDays, ps.retentionDays)
}

func TestRunCleanupStopsWithContext(t *testing.T) {
	sessions := &fakeSessions{}
	ps := NewService(sessions, &fakeRetention{}, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ps.RunCleanup(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sessions.calls() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}

func TestRetentionInfo(t *testing.T) {
	oldest := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := &fakeRetention{stats: database.SessionStats{Total: 4, Completed: 1, OldestActivity: &oldest}}
	ps := NewService(&fakeSessions{}, store, 90, nil)

	info, err := ps.RetentionInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 90, info["session_retention_days"])
	assert.Equal(t, 4, info["sessions_stored"])
	assert.Equal(t, "2026-01-02T03:04:05Z", info["oldest_activity"])
}

func TestAnonymizeID(t *testing.T) {
	a := AnonymizeID("session-1")
	assert.Len(t, a, 12)
	assert.Equal(t, a, AnonymizeID("session-1"))
	assert.NotEqual(t, a, AnonymizeID("session-2"))
}
