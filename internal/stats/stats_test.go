package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"farebot/internal/storage"
	"farebot/internal/track"
	logx "farebot/pkg/logx"
)

func setup(t *testing.T) (*Aggregator, *storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{
		Path:        filepath.Join(t.TempDir(), "stats.db"),
		BusyTimeout: 2 * time.Second,
	}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st), st
}

func TestRouteStatisticsEmpty(t *testing.T) {
	t.Parallel()
	agg, _ := setup(t)

	sum, err := agg.RouteStatistics(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, Summary{Target: track.Target{Kind: track.KindRoute, ID: 1}}, sum)
}

func TestRouteStatistics(t *testing.T) {
	t.Parallel()
	agg, st := setup(t)
	ctx := context.Background()
	target := track.Target{Kind: track.KindRoute, ID: 10}
	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	for i, price := range []float64{5200, 4800, 5000} {
		require.NoError(t, st.AppendObservation(ctx, track.PriceObservation{
			Target: target, Price: price, Currency: "RUB",
			ObservedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	notifiedAt := base.Add(90 * time.Minute)
	require.NoError(t, st.AppendLog(ctx, storage.LogEntry{
		UserID: 1, Target: target, Tier: track.TierHigh,
		Outcome: storage.OutcomeAllowed, At: base.Add(time.Hour),
	}))
	require.NoError(t, st.AppendLog(ctx, storage.LogEntry{
		UserID: 1, Target: target, Tier: track.TierMedium,
		Outcome: storage.OutcomeAllowed, At: notifiedAt,
	}))
	require.NoError(t, st.AppendLog(ctx, storage.LogEntry{
		UserID: 1, Target: target, Tier: track.TierLow,
		Outcome: storage.OutcomeDenied, Reason: "quota_exceeded", At: base.Add(2 * time.Hour),
	}))

	sum, err := agg.RouteStatistics(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 3, sum.Observations)
	require.Equal(t, 4800.0, sum.MinPrice)
	require.Equal(t, 5200.0, sum.MaxPrice)
	require.Equal(t, 5000.0, sum.MeanPrice)
	require.Equal(t, 2, sum.NotificationsSent, "denied attempts must not count as sends")
	require.Equal(t, track.TierMedium, sum.LastTier)
	require.True(t, sum.LastNotifiedAt.Equal(notifiedAt))
}

func TestStatisticsMatchLogReplay(t *testing.T) {
	t.Parallel()
	agg, st := setup(t)
	ctx := context.Background()
	target := track.Target{Kind: track.KindTrip, ID: 4}
	base := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	outcomes := []string{
		storage.OutcomeAllowed, storage.OutcomeDelivered,
		storage.OutcomeDenied, storage.OutcomeAllowed, storage.OutcomeFailed,
	}
	for i, out := range outcomes {
		require.NoError(t, st.AppendLog(ctx, storage.LogEntry{
			UserID: 2, Target: target, Tier: track.TierCritical,
			Outcome: out, At: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	sum, err := agg.TripStatistics(ctx, 4)
	require.NoError(t, err)

	log, err := st.LogByTarget(ctx, target)
	require.NoError(t, err)
	var allowed int
	for _, e := range log {
		if e.Outcome == storage.OutcomeAllowed {
			allowed++
		}
	}
	require.Equal(t, allowed, sum.NotificationsSent)
}
