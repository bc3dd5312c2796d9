package track

import (
	"time"
)

// TargetKind distinguishes the two trackable things: a single
// origin/destination search (route) or a multi-leg itinerary (trip).
type TargetKind string

const (
	KindRoute TargetKind = "route"
	KindTrip  TargetKind = "trip"
)

// Target identifies one trackable route or trip.
type Target struct {
	Kind TargetKind
	ID   int64
}

// LifecycleState is the archival flag. Archived targets keep their price
// history for statistics but are never polled or notified again.
type LifecycleState string

const (
	StateActive   LifecycleState = "active"
	StateArchived LifecycleState = "archived"
)

// DateMode selects between a fixed departure/return pair and a date range.
type DateMode string

const (
	DateFixed    DateMode = "fixed"
	DateFlexible DateMode = "flexible"
)

// Route is a single trackable fare search.
type Route struct {
	ID          int64
	OwnerID     int64
	Origin      string // IATA, 3 letters
	Destination string // IATA, 3 letters
	DateMode    DateMode

	// Fixed mode.
	DepartDate time.Time
	ReturnDate time.Time // zero for one-way

	// Flexible mode: bounds of the searched range, RangeStart <= RangeEnd.
	RangeStart time.Time
	RangeEnd   time.Time

	BaselinePrice float64
	Currency      string
	State         LifecycleState
	CreatedAt     time.Time
}

// TripLeg is one segment of a trip.
type TripLeg struct {
	Origin      string
	Destination string
	Date        time.Time
}

// CarrierFare is one carrier's share of a trip result.
type CarrierFare struct {
	Carrier string  `json:"carrier"`
	Price   float64 `json:"price"`
}

// TripResult is the current best-known aggregate for a trip.
type TripResult struct {
	TotalPrice float64
	Carriers   []CarrierFare
	FetchedAt  time.Time
}

// Trip is an ordered multi-leg itinerary tracked as one unit.
// Legs are chronologically non-decreasing; a trip has at least one leg.
type Trip struct {
	ID            int64
	OwnerID       int64
	Legs          []TripLeg
	Result        *TripResult
	BaselinePrice float64
	Currency      string
	State         LifecycleState
	CreatedAt     time.Time
}

// PriceObservation is the ephemeral input delivered by the fetch collaborator.
// Only a bounded recent window of these is retained per target.
type PriceObservation struct {
	Target     Target
	Price      float64
	Currency   string
	ObservedAt time.Time
}

// Tier is the classifier's output and drives quota size and cooldown length.
type Tier int

const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
	TierCritical
)

var tierNames = map[Tier]string{
	TierNone:     "none",
	TierLow:      "low",
	TierMedium:   "medium",
	TierHigh:     "high",
	TierCritical: "critical",
}

func (t Tier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return "none"
}

// ParseTier maps a stored tier name back to its Tier. Unknown names map to
// TierNone so stale log rows never panic the read side.
func ParseTier(s string) Tier {
	for t, name := range tierNames {
		if name == s {
			return t
		}
	}
	return TierNone
}
