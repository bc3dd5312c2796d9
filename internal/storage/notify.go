package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"farebot/internal/track"
)

// GetNotifyState loads the quota/cooldown record for (user, target).
// ok is false when the row does not exist yet (lazy creation is the gate's
// job, inside the same transaction that consumes the quota).
func (t *Tx) GetNotifyState(ctx context.Context, userID int64, target track.Target) (NotifyState, bool, error) {
	var (
		st        = NotifyState{UserID: userID, Target: target}
		winStart  sql.NullString
		lastSent  sql.NullString
		lastPrice sql.NullFloat64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT window_start, sent_in_window, last_sent_at, last_sent_price FROM notify_state
		 WHERE user_id = ? AND target_kind = ? AND target_id = ?`,
		userID, string(target.Kind), target.ID).
		Scan(&winStart, &st.SentInWindow, &lastSent, &lastPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return st, false, nil
	}
	if err != nil {
		return NotifyState{}, false, err
	}
	st.WindowStart = decodeTime(winStart)
	st.LastSentAt = decodeTime(lastSent)
	st.LastSentPrice = lastPrice.Float64
	return st, true, nil
}

// PutNotifyState upserts the quota/cooldown record.
func (t *Tx) PutNotifyState(ctx context.Context, st NotifyState) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO notify_state(user_id, target_kind, target_id, window_start, sent_in_window, last_sent_at, last_sent_price)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(user_id, target_kind, target_id) DO UPDATE SET
		   window_start    = excluded.window_start,
		   sent_in_window  = excluded.sent_in_window,
		   last_sent_at    = excluded.last_sent_at,
		   last_sent_price = excluded.last_sent_price`,
		st.UserID, string(st.Target.Kind), st.Target.ID,
		encodeTime(st.WindowStart), st.SentInWindow, encodeTime(st.LastSentAt), st.LastSentPrice)
	return err
}

// DeleteNotifyStateByUser removes every quota record of the user.
// Cleanup-cascade building block.
func (t *Tx) DeleteNotifyStateByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM notify_state WHERE user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasNotifyState reports whether any quota record remains for the user.
func (s *Store) HasNotifyState(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notify_state WHERE user_id = ?`, userID).Scan(&n)
	return n > 0, err
}

// ---- notification log ----

func appendLog(ctx context.Context, q querier, e LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO notify_log(id, user_id, target_kind, target_id, tier, outcome, reason, at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.ID, e.UserID, string(e.Target.Kind), e.Target.ID,
		e.Tier.String(), e.Outcome, nullStr(e.Reason), encodeTime(e.At))
	return err
}

// AppendLog appends one log row outside a transaction (delivery outcomes).
func (s *Store) AppendLog(ctx context.Context, e LogEntry) error {
	return appendLog(ctx, s.db, e)
}

// AppendLog appends one log row inside the current transaction (gate decisions).
func (t *Tx) AppendLog(ctx context.Context, e LogEntry) error {
	return appendLog(ctx, t.tx, e)
}

// LastAllowed returns the latest allowed log row for the target: timestamp
// and tier, plus the total count of allowed sends. Zero time and count when
// the target was never notified.
//
// "Latest" is append order (rowid): the `at` column is an RFC3339Nano string
// and fractional seconds do not sort lexicographically against whole ones.
func (s *Store) LastAllowed(ctx context.Context, target track.Target) (at time.Time, tier track.Tier, sent int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notify_log
		 WHERE target_kind = ? AND target_id = ? AND outcome = ?`,
		string(target.Kind), target.ID, OutcomeAllowed).Scan(&sent)
	if err != nil {
		return time.Time{}, track.TierNone, 0, err
	}
	if sent == 0 {
		return time.Time{}, track.TierNone, 0, nil
	}

	var (
		tierName string
		atStr    sql.NullString
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT tier, at FROM notify_log
		 WHERE target_kind = ? AND target_id = ? AND outcome = ?
		 ORDER BY rowid DESC LIMIT 1`,
		string(target.Kind), target.ID, OutcomeAllowed).Scan(&tierName, &atStr)
	if err != nil {
		return time.Time{}, track.TierNone, 0, err
	}
	return decodeTime(atStr), track.ParseTier(tierName), sent, nil
}

// LogByTarget replays the target's log in append order; stats consistency
// checks and audits read through this.
func (s *Store) LogByTarget(ctx context.Context, target track.Target) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, tier, outcome, reason, at FROM notify_log
		 WHERE target_kind = ? AND target_id = ? ORDER BY rowid`,
		string(target.Kind), target.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		e := LogEntry{Target: target}
		var (
			tierName string
			reason   sql.NullString
			at       sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &tierName, &e.Outcome, &reason, &at); err != nil {
			return nil, err
		}
		e.Tier = track.ParseTier(tierName)
		e.Reason = reason.String
		e.At = decodeTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
