package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"farebot/internal/track"
)

// CreateRoute validates and inserts a route, filling ID/State/CreatedAt.
func (s *Store) CreateRoute(ctx context.Context, r *track.Route) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.State == "" {
		r.State = track.StateActive
	}
	if err := r.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO routes(owner_id, origin, destination, date_mode, depart_date, return_date,
		                    range_start, range_end, baseline_price, currency, state, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.OwnerID, r.Origin, r.Destination, string(r.DateMode),
		encodeTime(r.DepartDate), encodeTime(r.ReturnDate),
		encodeTime(r.RangeStart), encodeTime(r.RangeEnd),
		r.BaselinePrice, r.Currency, string(r.State), encodeTime(r.CreatedAt),
	)
	if err != nil {
		return err
	}
	r.ID, err = res.LastInsertId()
	return err
}

const routeColumns = `id, owner_id, origin, destination, date_mode, depart_date, return_date,
	range_start, range_end, baseline_price, currency, state, created_at`

func scanRoute(row interface{ Scan(...any) error }) (track.Route, error) {
	var (
		r          track.Route
		mode       string
		state      string
		depart     sql.NullString
		ret        sql.NullString
		rangeStart sql.NullString
		rangeEnd   sql.NullString
		created    sql.NullString
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.Origin, &r.Destination, &mode, &depart, &ret,
		&rangeStart, &rangeEnd, &r.BaselinePrice, &r.Currency, &state, &created)
	if err != nil {
		return track.Route{}, err
	}
	r.DateMode = track.DateMode(mode)
	r.State = track.LifecycleState(state)
	r.DepartDate = decodeTime(depart)
	r.ReturnDate = decodeTime(ret)
	r.RangeStart = decodeTime(rangeStart)
	r.RangeEnd = decodeTime(rangeEnd)
	r.CreatedAt = decodeTime(created)
	return r, nil
}

// GetRoute returns a route by id, archived or not.
func (s *Store) GetRoute(ctx context.Context, id int64) (track.Route, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = ?`, id)
	r, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return track.Route{}, fmt.Errorf("%w: route %d", track.ErrNotFound, id)
	}
	return r, err
}

// ListActiveRoutes returns every active route; the poller sweeps over these.
func (s *Store) ListActiveRoutes(ctx context.Context) ([]track.Route, error) {
	return s.listRoutes(ctx, `SELECT `+routeColumns+` FROM routes WHERE state = ? ORDER BY id`, string(track.StateActive))
}

// ListActiveRoutesByOwner returns the owner's active routes.
func (s *Store) ListActiveRoutesByOwner(ctx context.Context, ownerID int64) ([]track.Route, error) {
	return s.listRoutes(ctx,
		`SELECT `+routeColumns+` FROM routes WHERE owner_id = ? AND state = ? ORDER BY id`,
		ownerID, string(track.StateActive))
}

func (s *Store) listRoutes(ctx context.Context, query string, args ...any) ([]track.Route, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []track.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TargetMeta resolves owner/baseline/state for a route or trip outside a
// transaction. The gate re-checks state transactionally; this is for the
// pipeline's pre-classification read.
func (s *Store) TargetMeta(ctx context.Context, target track.Target) (TargetMeta, error) {
	return targetMeta(ctx, s.db, target)
}

// TargetMeta is the transactional variant used by the gate.
func (t *Tx) TargetMeta(ctx context.Context, target track.Target) (TargetMeta, error) {
	return targetMeta(ctx, t.tx, target)
}

func targetMeta(ctx context.Context, q querier, target track.Target) (TargetMeta, error) {
	var table string
	switch target.Kind {
	case track.KindRoute:
		table = "routes"
	case track.KindTrip:
		table = "trips"
	default:
		return TargetMeta{}, fmt.Errorf("%w: unknown target kind %q", track.ErrNotFound, target.Kind)
	}

	var (
		m     TargetMeta
		state string
	)
	err := q.QueryRowContext(ctx,
		`SELECT owner_id, baseline_price, currency, state FROM `+table+` WHERE id = ?`, target.ID).
		Scan(&m.OwnerID, &m.Baseline, &m.Currency, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return TargetMeta{}, fmt.Errorf("%w: %s %d", track.ErrNotFound, target.Kind, target.ID)
	}
	if err != nil {
		return TargetMeta{}, err
	}
	m.State = track.LifecycleState(state)
	return m, nil
}

// ArchiveRoutesByOwner marks every active route of the owner archived and
// returns how many rows flipped. Cleanup-cascade building block.
func (t *Tx) ArchiveRoutesByOwner(ctx context.Context, ownerID int64) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE routes SET state = ? WHERE owner_id = ? AND state = ?`,
		string(track.StateArchived), ownerID, string(track.StateActive))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
