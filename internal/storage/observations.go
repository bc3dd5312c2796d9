package storage

import (
	"context"
	"database/sql"

	"farebot/internal/track"
)

// AppendObservation records one price point and trims the target's history
// down to the configured retention window. Trimming rides in the same
// statement sequence so history never grows unbounded between sweeps.
func (s *Store) AppendObservation(ctx context.Context, o track.PriceObservation) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx,
			`INSERT INTO observations(target_kind, target_id, price, currency, observed_at) VALUES(?,?,?,?,?)`,
			string(o.Target.Kind), o.Target.ID, o.Price, o.Currency, encodeTime(o.ObservedAt)); err != nil {
			return err
		}
		_, err := tx.tx.ExecContext(ctx,
			`DELETE FROM observations
			 WHERE target_kind = ? AND target_id = ?
			   AND id NOT IN (
			     SELECT id FROM observations
			     WHERE target_kind = ? AND target_id = ?
			     ORDER BY id DESC LIMIT ?)`,
			string(o.Target.Kind), o.Target.ID,
			string(o.Target.Kind), o.Target.ID, s.historyKeep)
		return err
	})
}

// History returns up to limit retained observations for the target, oldest
// first. limit <= 0 means the full retained window.
func (s *Store) History(ctx context.Context, target track.Target, limit int) ([]track.PriceObservation, error) {
	if limit <= 0 || limit > s.historyKeep {
		limit = s.historyKeep
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT price, currency, observed_at FROM (
		   SELECT id, price, currency, observed_at FROM observations
		   WHERE target_kind = ? AND target_id = ?
		   ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		string(target.Kind), target.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []track.PriceObservation
	for rows.Next() {
		o := track.PriceObservation{Target: target}
		var at sql.NullString
		if err := rows.Scan(&o.Price, &o.Currency, &at); err != nil {
			return nil, err
		}
		o.ObservedAt = decodeTime(at)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ObservationStats computes count/min/max/mean over the retained history.
// Zero observations yields a zero-valued result, not an error.
func (s *Store) ObservationStats(ctx context.Context, target track.Target) (count int, min, max, mean float64, err error) {
	var (
		nMin  sql.NullFloat64
		nMax  sql.NullFloat64
		nMean sql.NullFloat64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(price), MAX(price), AVG(price) FROM observations
		 WHERE target_kind = ? AND target_id = ?`,
		string(target.Kind), target.ID).Scan(&count, &nMin, &nMax, &nMean)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return count, nMin.Float64, nMax.Float64, nMean.Float64, nil
}
