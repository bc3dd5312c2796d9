package track

import (
	"fmt"
	"unicode"
)

// ValidIATA reports whether s looks like a 3-letter airport code.
// Cyrillic is accepted alongside Latin: user input frequently arrives as a
// transliteration-equivalent code (МОW, ЛЕД) and the fetch collaborator
// normalizes it downstream.
func ValidIATA(s string) bool {
	runes := []rune(s)
	if len(runes) != 3 {
		return false
	}
	for _, r := range runes {
		if !unicode.Is(unicode.Latin, r) && !unicode.Is(unicode.Cyrillic, r) {
			return false
		}
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// Validate checks the Route invariants.
func (r Route) Validate() error {
	if !ValidIATA(r.Origin) {
		return fmt.Errorf("%w: origin %q is not a 3-letter code", ErrInvalidRouteState, r.Origin)
	}
	if !ValidIATA(r.Destination) {
		return fmt.Errorf("%w: destination %q is not a 3-letter code", ErrInvalidRouteState, r.Destination)
	}
	switch r.DateMode {
	case DateFixed:
		if r.DepartDate.IsZero() {
			return fmt.Errorf("%w: fixed route requires a departure date", ErrInvalidRouteState)
		}
		if !r.ReturnDate.IsZero() && r.ReturnDate.Before(r.DepartDate) {
			return fmt.Errorf("%w: return date precedes departure", ErrInvalidRouteState)
		}
	case DateFlexible:
		if r.RangeStart.IsZero() || r.RangeEnd.IsZero() {
			return fmt.Errorf("%w: flexible route requires range bounds", ErrInvalidRouteState)
		}
		if r.RangeEnd.Before(r.RangeStart) {
			return fmt.Errorf("%w: date range end precedes start", ErrInvalidRouteState)
		}
	default:
		return fmt.Errorf("%w: unknown date mode %q", ErrInvalidRouteState, r.DateMode)
	}
	if r.BaselinePrice <= 0 {
		return fmt.Errorf("%w: baseline price must be positive", ErrInvalidRouteState)
	}
	return nil
}

// Validate checks the Trip invariants: at least one leg, legs ordered by date.
func (t Trip) Validate() error {
	if len(t.Legs) == 0 {
		return fmt.Errorf("%w: trip requires at least one leg", ErrInvalidRouteState)
	}
	for i, leg := range t.Legs {
		if !ValidIATA(leg.Origin) {
			return fmt.Errorf("%w: leg %d origin %q is not a 3-letter code", ErrInvalidRouteState, i, leg.Origin)
		}
		if !ValidIATA(leg.Destination) {
			return fmt.Errorf("%w: leg %d destination %q is not a 3-letter code", ErrInvalidRouteState, i, leg.Destination)
		}
		if leg.Date.IsZero() {
			return fmt.Errorf("%w: leg %d has no date", ErrInvalidRouteState, i)
		}
		if i > 0 && leg.Date.Before(t.Legs[i-1].Date) {
			return fmt.Errorf("%w: leg %d departs before leg %d", ErrInvalidRouteState, i, i-1)
		}
	}
	if t.BaselinePrice <= 0 {
		return fmt.Errorf("%w: baseline price must be positive", ErrInvalidRouteState)
	}
	return nil
}
