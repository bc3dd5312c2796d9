// Package classify scores a price observation against a target's history and
// baseline, producing the priority tier that drives notification urgency.
//
// Classification is a pure function: the same (observation, history, policy)
// always yields the same tier, and nothing here touches storage.
package classify

import (
	"fmt"
	"math"

	"farebot/internal/track"
)

// Policy holds the tunable scoring thresholds. Thresholds are fractions of
// the reference price (0.20 = a 20% drop) and must be strictly descending
// critical > high > medium > low > 0.
type Policy struct {
	Critical float64
	High     float64
	Medium   float64
	Low      float64

	// NoiseMultiplier sets the noise floor: a drop smaller than
	// NoiseMultiplier x the route's relative volatility is considered
	// ordinary fluctuation and gets dampened before thresholding.
	NoiseMultiplier float64

	// NoiseDampen is the factor applied to in-noise drops, in (0, 1].
	NoiseDampen float64
}

// DefaultPolicy mirrors the shipped config defaults.
func DefaultPolicy() Policy {
	return Policy{
		Critical:        0.20,
		High:            0.10,
		Medium:          0.05,
		Low:             0.01,
		NoiseMultiplier: 2.0,
		NoiseDampen:     0.5,
	}
}

func (p Policy) Validate() error {
	if !(p.Critical > p.High && p.High > p.Medium && p.Medium > p.Low && p.Low > 0) {
		return fmt.Errorf("classify: thresholds must be strictly descending and positive")
	}
	if p.NoiseMultiplier < 0 {
		return fmt.Errorf("classify: noise multiplier must be >= 0")
	}
	if p.NoiseDampen <= 0 || p.NoiseDampen > 1 {
		return fmt.Errorf("classify: noise dampen must be in (0, 1]")
	}
	return nil
}

// Classify maps one observation plus the target's recent history (oldest to
// newest, not including obs itself) and creation-time baseline to a tier.
//
// Rules:
//   - baseline <= 0 is malformed tracking state: ErrInvalidRouteState.
//   - an observation equal to the last recorded price is always TierNone.
//   - a price above the baseline never classifies critical or high.
func Classify(obs track.PriceObservation, history []track.PriceObservation, baseline float64, p Policy) (track.Tier, error) {
	if baseline <= 0 {
		return track.TierNone, fmt.Errorf("%w: baseline %v for %s %d", track.ErrInvalidRouteState, baseline, obs.Target.Kind, obs.Target.ID)
	}
	if obs.Price <= 0 {
		return track.TierNone, fmt.Errorf("%w: observed price %v", track.ErrInvalidRouteState, obs.Price)
	}

	var last float64
	if n := len(history); n > 0 {
		last = history[n-1].Price
	}
	if last > 0 && obs.Price == last {
		return track.TierNone, nil
	}

	dropBase := (baseline - obs.Price) / baseline
	score := dropBase
	if last > 0 {
		if dropLast := (last - obs.Price) / last; dropLast > score {
			score = dropLast
		}
	}
	if score <= 0 {
		// No drop at all: increases and flat prices are never notified.
		return track.TierNone, nil
	}

	// Normalize "significant" against the route's typical noise: a drop that
	// doesn't clear the noise floor is scored down instead of discarded, so
	// very large in-noise drops on jittery routes can still reach low tiers.
	if vol := relativeVolatility(history); vol > 0 && score < p.NoiseMultiplier*vol {
		score *= p.NoiseDampen
	}

	tier := tierFor(score, p)

	// An observation above the baseline is at best a local dip.
	if obs.Price > baseline && tier > track.TierMedium {
		tier = track.TierMedium
	}
	return tier, nil
}

func tierFor(score float64, p Policy) track.Tier {
	switch {
	case score >= p.Critical:
		return track.TierCritical
	case score >= p.High:
		return track.TierHigh
	case score >= p.Medium:
		return track.TierMedium
	case score >= p.Low:
		return track.TierLow
	default:
		return track.TierNone
	}
}

// relativeVolatility is the population standard deviation of the history
// prices divided by their mean. Fewer than two points means no measurable
// noise; the caller then compares against the baseline alone.
func relativeVolatility(history []track.PriceObservation) float64 {
	if len(history) < 2 {
		return 0
	}
	var sum float64
	for _, h := range history {
		sum += h.Price
	}
	mean := sum / float64(len(history))
	if mean <= 0 {
		return 0
	}
	var sq float64
	for _, h := range history {
		d := h.Price - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(history))) / mean
}
