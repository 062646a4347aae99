package reaper

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediadl/mediadl/internal/media"
	"github.com/mediadl/mediadl/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func markTerminal(st store.Store, id string, status store.Status) {
	st.Update(id, store.Update{Status: &status})
}

func TestSweep_DeletesAgedTerminalJobs(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	st := store.NewMemoryStore(clock)
	st.Create("old-done", media.PlatformYouTube, media.KindVideo)
	markTerminal(st, "old-done", store.StatusDone)

	clock.Advance(3601 * time.Second)
	r := New(st, clock, Config{Retention: time.Hour}, nil)

	require.Equal(t, 1, r.Sweep())
	_, ok := st.Get("old-done")
	require.False(t, ok)
}

func TestSweep_RetainsJobsInsideWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	st := store.NewMemoryStore(clock)
	st.Create("fresh-done", media.PlatformYouTube, media.KindVideo)
	markTerminal(st, "fresh-done", store.StatusDone)

	clock.Advance(3599 * time.Second)
	r := New(st, clock, Config{Retention: time.Hour}, nil)

	require.Equal(t, 0, r.Sweep())
	_, ok := st.Get("fresh-done")
	require.True(t, ok)
}

func TestSweep_NeverTouchesInFlightJobs(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	st := store.NewMemoryStore(clock)
	st.Create("stuck", media.PlatformYouTube, media.KindVideo)
	downloading := store.StatusDownloading
	st.Update("stuck", store.Update{Status: &downloading})

	clock.Advance(48 * time.Hour)
	r := New(st, clock, Config{Retention: time.Hour}, nil)

	require.Equal(t, 0, r.Sweep())
	_, ok := st.Get("stuck")
	require.True(t, ok)
}

func TestSweep_MixedRecords(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	st := store.NewMemoryStore(clock)
	st.Create("old-done", media.PlatformYouTube, media.KindVideo)
	markTerminal(st, "old-done", store.StatusDone)
	st.Create("old-error", media.PlatformTwitter, media.KindAudio)
	markTerminal(st, "old-error", store.StatusError)

	clock.Advance(2 * time.Hour)
	st.Create("new-done", media.PlatformInstagram, media.KindPhoto)
	markTerminal(st, "new-done", store.StatusDone)

	r := New(st, clock, Config{Retention: time.Hour}, nil)
	require.Equal(t, 2, r.Sweep())

	_, ok := st.Get("new-done")
	require.True(t, ok)
	require.Len(t, st.List(), 1)
}
