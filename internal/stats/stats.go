// Package stats computes read-side summaries over stored observations and
// the notification log. It never writes; every figure here is reconstructible
// by replaying repository data.
package stats

import (
	"context"
	"time"

	"farebot/internal/storage"
	"farebot/internal/track"
)

// Summary is the per-target statistics block surfaced to users and consumed
// by reporting. A target with no observations yields the zero Summary.
type Summary struct {
	Target            track.Target
	Observations      int
	MinPrice          float64
	MaxPrice          float64
	MeanPrice         float64
	LastNotifiedAt    time.Time  // zero if never notified
	NotificationsSent int        // allowed sends, replayed from the log
	LastTier          track.Tier // tier of the newest allowed send
}

type Aggregator struct {
	store *storage.Store
}

func New(store *storage.Store) *Aggregator {
	return &Aggregator{store: store}
}

// RouteStatistics summarizes one route.
func (a *Aggregator) RouteStatistics(ctx context.Context, routeID int64) (Summary, error) {
	return a.forTarget(ctx, track.Target{Kind: track.KindRoute, ID: routeID})
}

// TripStatistics summarizes one trip.
func (a *Aggregator) TripStatistics(ctx context.Context, tripID int64) (Summary, error) {
	return a.forTarget(ctx, track.Target{Kind: track.KindTrip, ID: tripID})
}

func (a *Aggregator) forTarget(ctx context.Context, target track.Target) (Summary, error) {
	sum := Summary{Target: target}

	count, min, max, mean, err := a.store.ObservationStats(ctx, target)
	if err != nil {
		return Summary{}, err
	}
	sum.Observations = count
	if count > 0 {
		sum.MinPrice, sum.MaxPrice, sum.MeanPrice = min, max, mean
	}

	at, tier, sent, err := a.store.LastAllowed(ctx, target)
	if err != nil {
		return Summary{}, err
	}
	sum.LastNotifiedAt = at
	sum.LastTier = tier
	sum.NotificationsSent = sent
	return sum, nil
}
