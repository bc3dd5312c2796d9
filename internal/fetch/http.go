// Package fetch is the client side of the scraper collaborator. The
// collaborator service does all fare-page scraping and query parsing; this
// client only asks it for the current quote of a tracked route or trip and
// hands back a well-formed observation.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"farebot/internal/track"
	logx "farebot/pkg/logx"
)

type Config struct {
	// BaseURL of the quote service, e.g. "http://127.0.0.1:8090".
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	base string
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("fetch: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{base: base, http: &http.Client{Timeout: timeout}, log: log}, nil
}

// quoteRequest mirrors the collaborator's API: a route is a one-leg (or
// two-leg, with return) quote; a trip sends all legs.
type quoteRequest struct {
	Legs []quoteLeg `json:"legs"`
}

type quoteLeg struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date,omitempty"`
	RangeStart  string `json:"range_start,omitempty"`
	RangeEnd    string `json:"range_end,omitempty"`
}

type quoteResponse struct {
	Price      float64             `json:"price"`
	Currency   string              `json:"currency"`
	ObservedAt time.Time           `json:"observed_at"`
	Carriers   []track.CarrierFare `json:"carriers,omitempty"`
}

func (c *Client) FetchRoute(ctx context.Context, r track.Route) (track.PriceObservation, error) {
	leg := quoteLeg{Origin: r.Origin, Destination: r.Destination}
	switch r.DateMode {
	case track.DateFlexible:
		leg.RangeStart = day(r.RangeStart)
		leg.RangeEnd = day(r.RangeEnd)
	default:
		leg.Date = day(r.DepartDate)
	}
	req := quoteRequest{Legs: []quoteLeg{leg}}
	if r.DateMode == track.DateFixed && !r.ReturnDate.IsZero() {
		req.Legs = append(req.Legs, quoteLeg{Origin: r.Destination, Destination: r.Origin, Date: day(r.ReturnDate)})
	}
	obs, _, err := c.quote(ctx, track.Target{Kind: track.KindRoute, ID: r.ID}, r.Currency, req)
	return obs, err
}

// FetchTrip quotes all legs as one unit. Besides the observation it returns
// the aggregate result (total, per-carrier breakdown, fetch time) the caller
// persists as the trip's current best-known state.
func (c *Client) FetchTrip(ctx context.Context, t track.Trip) (track.PriceObservation, track.TripResult, error) {
	req := quoteRequest{Legs: make([]quoteLeg, 0, len(t.Legs))}
	for _, l := range t.Legs {
		req.Legs = append(req.Legs, quoteLeg{Origin: l.Origin, Destination: l.Destination, Date: day(l.Date)})
	}
	obs, carriers, err := c.quote(ctx, track.Target{Kind: track.KindTrip, ID: t.ID}, t.Currency, req)
	if err != nil {
		return track.PriceObservation{}, track.TripResult{}, err
	}
	return obs, track.TripResult{
		TotalPrice: obs.Price,
		Carriers:   carriers,
		FetchedAt:  obs.ObservedAt,
	}, nil
}

func (c *Client) quote(ctx context.Context, target track.Target, currency string, q quoteRequest) (track.PriceObservation, []track.CarrierFare, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return track.PriceObservation{}, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/quote", bytes.NewReader(body))
	if err != nil {
		return track.PriceObservation{}, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return track.PriceObservation{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return track.PriceObservation{}, nil, fmt.Errorf("fetch: quote service returned http %d", resp.StatusCode)
	}
	var out quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return track.PriceObservation{}, nil, fmt.Errorf("fetch: decode quote: %w", err)
	}
	if out.Price <= 0 {
		return track.PriceObservation{}, nil, fmt.Errorf("fetch: quote service returned non-positive price %v", out.Price)
	}
	if out.Currency == "" {
		out.Currency = currency
	}
	if out.ObservedAt.IsZero() {
		out.ObservedAt = time.Now().UTC()
	}
	return track.PriceObservation{
		Target:     target,
		Price:      out.Price,
		Currency:   out.Currency,
		ObservedAt: out.ObservedAt,
	}, out.Carriers, nil
}

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
