package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"farebot/internal/track"
)

// UpsertUserSettings creates or updates the user's settings row.
func (s *Store) UpsertUserSettings(ctx context.Context, u UserSettings) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.Plan == "" {
		u.Plan = "free"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings(user_id, plan, currency, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET plan = excluded.plan, currency = excluded.currency`,
		u.UserID, u.Plan, u.Currency, encodeTime(u.CreatedAt))
	return err
}

// GetUserSettings returns the settings row, or ErrNotFound after cleanup.
func (s *Store) GetUserSettings(ctx context.Context, userID int64) (UserSettings, error) {
	var (
		u       = UserSettings{UserID: userID}
		created sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT plan, currency, created_at FROM user_settings WHERE user_id = ?`, userID).
		Scan(&u.Plan, &u.Currency, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return UserSettings{}, track.ErrNotFound
	}
	if err != nil {
		return UserSettings{}, err
	}
	u.CreatedAt = decodeTime(created)
	return u, nil
}

// DeleteUserSettings removes the settings row inside the current transaction.
// Cleanup-cascade building block; returns whether a row existed.
func (t *Tx) DeleteUserSettings(ctx context.Context, userID int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM user_settings WHERE user_id = ?`, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
