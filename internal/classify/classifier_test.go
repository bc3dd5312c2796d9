package classify

import (
	"errors"
	"testing"
	"time"

	"farebot/internal/track"
)

func obsAt(price float64) track.PriceObservation {
	return track.PriceObservation{
		Target:     track.Target{Kind: track.KindRoute, ID: 1},
		Price:      price,
		Currency:   "RUB",
		ObservedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func historyOf(prices ...float64) []track.PriceObservation {
	out := make([]track.PriceObservation, 0, len(prices))
	for i, p := range prices {
		o := obsAt(p)
		o.ObservedAt = o.ObservedAt.Add(time.Duration(i) * time.Hour)
		out = append(out, o)
	}
	return out
}

func TestClassifyTiers(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()

	tests := []struct {
		name     string
		price    float64
		history  []float64
		baseline float64
		want     track.Tier
	}{
		{"deep drop on stable history", 15000, []float64{20000, 19800, 19500}, 20000, track.TierCritical},
		{"equal to last observation", 19500, []float64{20000, 19800, 19500}, 20000, track.TierNone},
		{"empty history compares to baseline", 17000, nil, 20000, track.TierHigh},
		{"small drop", 19700, []float64{20000, 19900}, 20000, track.TierLow},
		{"price increase", 11000, []float64{10500}, 10000, track.TierNone},
		// A big drop from the last point that still sits above baseline is
		// at best a local dip, never critical/high.
		{"dip above baseline capped", 12000, []float64{20000}, 10000, track.TierMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(obsAt(tt.price), historyOf(tt.history...), tt.baseline, p)
			if err != nil {
				t.Fatalf("Classify error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("tier = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyNoiseDampening(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()

	// Jittery history: mean 12000, stddev 2000, relative volatility ~0.167.
	// A 10% drop is inside the 2x noise floor, so it is halved to 5%:
	// medium instead of high.
	history := historyOf(10000, 14000)
	tier, err := Classify(obsAt(12600), history, 14000, p)
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if tier != track.TierMedium {
		t.Fatalf("tier = %v, want TierMedium (in-noise drop dampened)", tier)
	}

	// The same 10% drop on a flat history clears the floor untouched.
	flat := historyOf(14000, 14000, 14001)
	tier, err = Classify(obsAt(12600), flat, 14000, p)
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if tier != track.TierHigh {
		t.Fatalf("tier = %v, want TierHigh (stable route, real drop)", tier)
	}
}

func TestClassifyNeverCriticalAboveBaseline(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	// Sweep a range of prices above the baseline with varied histories.
	for _, price := range []float64{10001, 11000, 15000, 30000} {
		for _, hist := range [][]float64{nil, {40000}, {40000, 35000}, {price * 2}} {
			tier, err := Classify(obsAt(price), historyOf(hist...), 10000, p)
			if err != nil {
				t.Fatalf("Classify error: %v", err)
			}
			if tier == track.TierCritical || tier == track.TierHigh {
				t.Fatalf("price %v above baseline classified %v", price, tier)
			}
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	obs := obsAt(15000)
	history := historyOf(20000, 19800, 19500)
	first, err := Classify(obs, history, 20000, p)
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := Classify(obs, history, 20000, p)
		if err != nil {
			t.Fatalf("Classify error: %v", err)
		}
		if got != first {
			t.Fatalf("run %d: tier = %v, want %v (must be deterministic)", i, got, first)
		}
	}
}

func TestClassifyInvalidBaseline(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	for _, baseline := range []float64{0, -100} {
		_, err := Classify(obsAt(5000), nil, baseline, p)
		if !errors.Is(err, track.ErrInvalidRouteState) {
			t.Fatalf("baseline %v: error = %v, want ErrInvalidRouteState", baseline, err)
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}

	bad := DefaultPolicy()
	bad.High = bad.Critical + 1
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for non-descending thresholds")
	}

	bad = DefaultPolicy()
	bad.NoiseDampen = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero dampen factor")
	}
}
