package cleanup

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"farebot/internal/gate"
	"farebot/internal/plans"
	"farebot/internal/storage"
	"farebot/internal/track"
	logx "farebot/pkg/logx"
)

func setup(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{
		Path:        filepath.Join(t.TempDir(), "cleanup.db"),
		BusyTimeout: 2 * time.Second,
	}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, logx.Nop()), st
}

func seedUser(t *testing.T, st *storage.Store, userID int64) (route, trip track.Target) {
	t.Helper()
	ctx := context.Background()

	r := &track.Route{
		OwnerID: userID, Origin: "SVO", Destination: "LED",
		DateMode: track.DateFixed, DepartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		BaselinePrice: 5000, Currency: "RUB",
	}
	require.NoError(t, st.CreateRoute(ctx, r))

	tr := &track.Trip{
		OwnerID: userID, BaselinePrice: 30000, Currency: "RUB",
		Legs: []track.TripLeg{
			{Origin: "SVO", Destination: "IST", Date: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
			{Origin: "IST", Destination: "SVO", Date: time.Date(2026, 10, 8, 0, 0, 0, 0, time.UTC)},
		},
	}
	require.NoError(t, st.CreateTrip(ctx, tr))

	require.NoError(t, st.UpsertUserSettings(ctx, storage.UserSettings{UserID: userID, Plan: "free"}))
	require.NoError(t, st.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.PutNotifyState(ctx, storage.NotifyState{
			UserID: userID, Target: track.Target{Kind: track.KindRoute, ID: r.ID},
			WindowStart: time.Now(), SentInWindow: 1, LastSentAt: time.Now(),
		})
	}))

	return track.Target{Kind: track.KindRoute, ID: r.ID}, track.Target{Kind: track.KindTrip, ID: tr.ID}
}

func TestCleanupCascade(t *testing.T) {
	t.Parallel()
	svc, st := setup(t)
	ctx := context.Background()
	routeTarget, tripTarget := seedUser(t, st, 55)

	res, err := svc.CleanupBlockedUser(ctx, 55)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.RoutesArchived)
	require.Equal(t, int64(1), res.TripsArchived)
	require.True(t, res.SettingsDeleted)

	meta, err := st.TargetMeta(ctx, routeTarget)
	require.NoError(t, err)
	require.Equal(t, track.StateArchived, meta.State)

	meta, err = st.TargetMeta(ctx, tripTarget)
	require.NoError(t, err)
	require.Equal(t, track.StateArchived, meta.State)

	has, err := st.HasNotifyState(ctx, 55)
	require.NoError(t, err)
	require.False(t, has)

	_, err = st.GetUserSettings(ctx, 55)
	require.ErrorIs(t, err, track.ErrNotFound)
}

func TestCleanupIdempotent(t *testing.T) {
	t.Parallel()
	svc, st := setup(t)
	seedUser(t, st, 56)

	_, err := svc.CleanupBlockedUser(context.Background(), 56)
	require.NoError(t, err)

	res, err := svc.CleanupBlockedUser(context.Background(), 56)
	require.NoError(t, err)
	require.Zero(t, res.RoutesArchived)
	require.Zero(t, res.TripsArchived)
	require.False(t, res.SettingsDeleted)
}

func TestCleanupUnknownUser(t *testing.T) {
	t.Parallel()
	svc, _ := setup(t)

	res, err := svc.CleanupBlockedUser(context.Background(), 999)
	require.NoError(t, err)
	require.Equal(t, Result{}, res)
}

func TestCleanupRacingGateNeverInterleaves(t *testing.T) {
	t.Parallel()
	svc, st := setup(t)
	ctx := context.Background()
	planSvc := plans.New(nil, "free", plans.Fixed("free"), logx.Nop())
	g := gate.New(st, planSvc, logx.Nop())

	// Each round races one acquisition against the cascade for a fresh user.
	// Whichever transaction commits first wins whole: either the send was
	// fully reserved before the archive, or it was denied target_archived.
	// A notify_state row surviving the cleanup would mean the two interleaved.
	for round := int64(0); round < 10; round++ {
		userID := 1000 + round
		r := &track.Route{
			OwnerID: userID, Origin: "SVO", Destination: "LED",
			DateMode: track.DateFixed, DepartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			BaselinePrice: 5000, Currency: "RUB",
		}
		require.NoError(t, st.CreateRoute(ctx, r))
		routeTarget := track.Target{Kind: track.KindRoute, ID: r.ID}

		var (
			wg       sync.WaitGroup
			decision gate.Decision
			gateErr  error
			cleanErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			decision, gateErr = g.TryAcquire(ctx, userID, routeTarget, track.TierCritical, 4000, time.Now())
		}()
		go func() {
			defer wg.Done()
			_, cleanErr = svc.CleanupBlockedUser(ctx, userID)
		}()
		wg.Wait()

		require.NoError(t, gateErr)
		require.NoError(t, cleanErr)
		if !decision.Allowed {
			require.Equal(t, gate.ReasonTargetArchived, decision.Reason)
		}

		meta, err := st.TargetMeta(ctx, routeTarget)
		require.NoError(t, err)
		require.Equal(t, track.StateArchived, meta.State)

		has, err := st.HasNotifyState(ctx, userID)
		require.NoError(t, err)
		require.False(t, has, "round %d: notify_state survived pointing at an archived route", round)
	}
}

func TestGateDeniesAfterCleanup(t *testing.T) {
	t.Parallel()
	svc, st := setup(t)
	ctx := context.Background()
	routeTarget, _ := seedUser(t, st, 57)

	planSvc := plans.New(nil, "free", plans.Fixed("free"), logx.Nop())
	g := gate.New(st, planSvc, logx.Nop())

	_, err := svc.CleanupBlockedUser(ctx, 57)
	require.NoError(t, err)

	d, err := g.TryAcquire(ctx, 57, routeTarget, track.TierCritical, 4000, time.Now())
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, gate.ReasonTargetArchived, d.Reason)
}
