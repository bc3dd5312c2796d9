package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"farebot/internal/track"
)

// CreateTrip validates and inserts a trip with its legs in one transaction.
func (s *Store) CreateTrip(ctx context.Context, t *track.Trip) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.State == "" {
		t.State = track.StateActive
	}
	if err := t.Validate(); err != nil {
		return err
	}

	return s.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx,
			`INSERT INTO trips(owner_id, baseline_price, currency, state, created_at) VALUES(?,?,?,?,?)`,
			t.OwnerID, t.BaselinePrice, t.Currency, string(t.State), encodeTime(t.CreatedAt))
		if err != nil {
			return err
		}
		t.ID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		for i, leg := range t.Legs {
			if _, err := tx.tx.ExecContext(ctx,
				`INSERT INTO trip_legs(trip_id, seq, origin, destination, leg_date) VALUES(?,?,?,?,?)`,
				t.ID, i, leg.Origin, leg.Destination, encodeTime(leg.Date)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetTrip loads a trip with legs and its current result (if any).
func (s *Store) GetTrip(ctx context.Context, id int64) (track.Trip, error) {
	var (
		t       track.Trip
		state   string
		created sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, baseline_price, currency, state, created_at FROM trips WHERE id = ?`, id).
		Scan(&t.ID, &t.OwnerID, &t.BaselinePrice, &t.Currency, &state, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return track.Trip{}, fmt.Errorf("%w: trip %d", track.ErrNotFound, id)
	}
	if err != nil {
		return track.Trip{}, err
	}
	t.State = track.LifecycleState(state)
	t.CreatedAt = decodeTime(created)

	rows, err := s.db.QueryContext(ctx,
		`SELECT origin, destination, leg_date FROM trip_legs WHERE trip_id = ? ORDER BY seq`, id)
	if err != nil {
		return track.Trip{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			leg  track.TripLeg
			date sql.NullString
		)
		if err := rows.Scan(&leg.Origin, &leg.Destination, &date); err != nil {
			return track.Trip{}, err
		}
		leg.Date = decodeTime(date)
		t.Legs = append(t.Legs, leg)
	}
	if err := rows.Err(); err != nil {
		return track.Trip{}, err
	}

	res, err := s.getTripResult(ctx, id)
	if err != nil {
		return track.Trip{}, err
	}
	t.Result = res
	return t, nil
}

func (s *Store) getTripResult(ctx context.Context, tripID int64) (*track.TripResult, error) {
	var (
		r        track.TripResult
		carriers string
		fetched  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT total_price, carriers, fetched_at FROM trip_results WHERE trip_id = ?`, tripID).
		Scan(&r.TotalPrice, &carriers, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(carriers), &r.Carriers); err != nil {
		return nil, fmt.Errorf("trip %d result carriers: %w", tripID, err)
	}
	r.FetchedAt = decodeTime(fetched)
	return &r, nil
}

// PutTripResult upserts the trip's best-known aggregate result.
func (s *Store) PutTripResult(ctx context.Context, tripID int64, r track.TripResult) error {
	carriers, err := json.Marshal(r.Carriers)
	if err != nil {
		return err
	}
	if r.FetchedAt.IsZero() {
		r.FetchedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trip_results(trip_id, total_price, carriers, fetched_at) VALUES(?,?,?,?)
		 ON CONFLICT(trip_id) DO UPDATE SET
		   total_price = excluded.total_price,
		   carriers    = excluded.carriers,
		   fetched_at  = excluded.fetched_at`,
		tripID, r.TotalPrice, string(carriers), encodeTime(r.FetchedAt))
	return err
}

// ListActiveTrips returns every active trip id with owner/baseline, enough
// for the poll sweep without loading legs.
func (s *Store) ListActiveTrips(ctx context.Context) ([]track.Trip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, baseline_price, currency, state, created_at FROM trips WHERE state = ? ORDER BY id`,
		string(track.StateActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []track.Trip
	for rows.Next() {
		var (
			t       track.Trip
			state   string
			created sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.BaselinePrice, &t.Currency, &state, &created); err != nil {
			return nil, err
		}
		t.State = track.LifecycleState(state)
		t.CreatedAt = decodeTime(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ArchiveTripsByOwner marks every active trip of the owner archived.
func (t *Tx) ArchiveTripsByOwner(ctx context.Context, ownerID int64) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE trips SET state = ? WHERE owner_id = ? AND state = ?`,
		string(track.StateArchived), ownerID, string(track.StateActive))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
