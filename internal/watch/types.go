package watch

import (
	"context"

	"farebot/internal/track"
)

type Config struct {
	Enabled bool
	// Schedule is a robfig/cron spec ("*/5 * * * *", "@every 10m").
	Schedule   string
	Workers    int
	QueueSize  int
	RatePerSec int // outbound dispatch rate, distinct from the quota gate
	RetryMax   int // transient delivery retries per send
}

// Fetcher is the scraping collaborator: given a tracked route or trip it
// returns the current best price. Trips additionally yield the aggregate
// result the pipeline persists. The core never parses fare pages itself.
type Fetcher interface {
	FetchRoute(ctx context.Context, r track.Route) (track.PriceObservation, error)
	FetchTrip(ctx context.Context, t track.Trip) (track.PriceObservation, track.TripResult, error)
}

// job is one poll unit: a single target due for a fetch.
type job struct {
	target track.Target
}
