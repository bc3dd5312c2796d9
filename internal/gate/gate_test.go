package gate

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"farebot/internal/plans"
	"farebot/internal/storage"
	"farebot/internal/track"
	logx "farebot/pkg/logx"
)

// testPlan has no cooldown on critical so quota behavior can be exercised
// with back-to-back acquisitions.
func testPlan() map[string]plans.Plan {
	return map[string]plans.Plan{
		"free": {
			Window: 24 * time.Hour,
			Tiers: map[track.Tier]plans.TierPolicy{
				track.TierCritical: {MaxPerWindow: 3, MinInterval: 0},
				track.TierHigh:     {MaxPerWindow: 2, MinInterval: 2 * time.Hour},
				track.TierLow:      {MaxPerWindow: 1, MinInterval: 12 * time.Hour},
			},
		},
	}
}

func setup(t *testing.T) (*Gate, *storage.Store, track.Target) {
	t.Helper()
	st, err := storage.Open(storage.Config{
		Path:        filepath.Join(t.TempDir(), "gate.db"),
		BusyTimeout: 2 * time.Second,
	}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r := &track.Route{
		OwnerID:       100,
		Origin:        "SVO",
		Destination:   "AER",
		DateMode:      track.DateFixed,
		DepartDate:    time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		BaselinePrice: 8000,
		Currency:      "RUB",
	}
	require.NoError(t, st.CreateRoute(context.Background(), r))

	svc := plans.New(testPlan(), "free", plans.Fixed("free"), logx.Nop())
	return New(st, svc, logx.Nop()), st, track.Target{Kind: track.KindRoute, ID: r.ID}
}

func TestQuotaAllowsUpToLimit(t *testing.T) {
	t.Parallel()
	g, st, target := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		d, err := g.TryAcquire(ctx, 100, target, track.TierCritical, 6000, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.True(t, d.Allowed, "send %d should fit the quota", i+1)
	}

	d, err := g.TryAcquire(ctx, 100, target, track.TierCritical, 6000, now.Add(3*time.Minute))
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonQuotaExceeded, d.Reason)

	// Denials are logged but never silently dropped.
	log, err := st.LogByTarget(ctx, target)
	require.NoError(t, err)
	require.Len(t, log, 4)
	require.Equal(t, storage.OutcomeDenied, log[3].Outcome)
	require.Equal(t, string(ReasonQuotaExceeded), log[3].Reason)
}

func TestCooldownDenies(t *testing.T) {
	t.Parallel()
	g, _, target := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	d, err := g.TryAcquire(ctx, 100, target, track.TierHigh, 6000, now)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = g.TryAcquire(ctx, 100, target, track.TierHigh, 5900, now.Add(30*time.Minute))
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonCooldownActive, d.Reason)

	d, err = g.TryAcquire(ctx, 100, target, track.TierHigh, 5900, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, d.Allowed, "cooldown elapsed, second quota slot still free")
}

func TestDenialLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	g, st, target := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	d, err := g.TryAcquire(ctx, 100, target, track.TierLow, 7900, now)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	readState := func() storage.NotifyState {
		var got storage.NotifyState
		require.NoError(t, st.WithTx(ctx, func(tx *storage.Tx) error {
			s, found, err := tx.GetNotifyState(ctx, 100, target)
			require.NoError(t, err)
			require.True(t, found)
			got = s
			return nil
		}))
		return got
	}
	before := readState()

	d, err = g.TryAcquire(ctx, 100, target, track.TierLow, 7800, now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, d.Allowed)

	after := readState()
	require.Equal(t, before.SentInWindow, after.SentInWindow)
	require.True(t, before.LastSentAt.Equal(after.LastSentAt))
	require.True(t, before.WindowStart.Equal(after.WindowStart))
}

func TestWindowRollover(t *testing.T) {
	t.Parallel()
	g, _, target := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		d, err := g.TryAcquire(ctx, 100, target, track.TierCritical, 6000, now)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		now = now.Add(time.Minute)
	}
	d, err := g.TryAcquire(ctx, 100, target, track.TierCritical, 6000, now)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// A full window later capacity is back.
	d, err = g.TryAcquire(ctx, 100, target, track.TierCritical, 6000, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestTierNoneNeverAcquires(t *testing.T) {
	t.Parallel()
	g, st, target := setup(t)
	ctx := context.Background()

	d, err := g.TryAcquire(ctx, 100, target, track.TierNone, 8000, time.Now())
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonTierNone, d.Reason)

	has, err := st.HasNotifyState(ctx, 100)
	require.NoError(t, err)
	require.False(t, has)
}

func TestArchivedTargetFailsClosed(t *testing.T) {
	t.Parallel()
	g, st, target := setup(t)
	ctx := context.Background()

	require.NoError(t, st.WithTx(ctx, func(tx *storage.Tx) error {
		_, err := tx.ArchiveRoutesByOwner(ctx, 100)
		return err
	}))

	d, err := g.TryAcquire(ctx, 100, target, track.TierCritical, 6000, time.Now())
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonTargetArchived, d.Reason)
}

func TestMissingTargetFailsClosed(t *testing.T) {
	t.Parallel()
	g, _, _ := setup(t)

	d, err := g.TryAcquire(context.Background(), 100,
		track.Target{Kind: track.KindRoute, ID: 424242}, track.TierHigh, 6000, time.Now())
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonTargetArchived, d.Reason)
}

func TestStorageErrorIsNotADenial(t *testing.T) {
	t.Parallel()
	g, st, target := setup(t)

	require.NoError(t, st.Close())

	d, err := g.TryAcquire(context.Background(), 100, target, track.TierCritical, 6000, time.Now())
	require.Error(t, err, "a broken store must surface as an error, never as a throttle decision")
	require.False(t, d.Allowed)
	require.Empty(t, d.Reason)
}

func TestConcurrentAcquisitionsNeverOversend(t *testing.T) {
	t.Parallel()
	g, _, target := setup(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	const attempts = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
		errs    []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := g.TryAcquire(ctx, 100, target, track.TierCritical, 6000, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if d.Allowed {
				allowed++
			}
		}()
	}
	wg.Wait()
	require.Empty(t, errs)
	require.Equal(t, 3, allowed, "exactly the quota may succeed under contention")
}
