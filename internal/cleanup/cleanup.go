// Package cleanup archives everything a blocked user owns and deletes their
// notification state and settings, as one transaction.
package cleanup

import (
	"context"
	"fmt"

	"farebot/internal/storage"
	"farebot/internal/track"
	logx "farebot/pkg/logx"
)

// Result reports what one cleanup pass touched. A second pass for an already
// cleaned user reports zeros.
type Result struct {
	RoutesArchived  int64
	TripsArchived   int64
	SettingsDeleted bool
}

type Service struct {
	store *storage.Store
	log   logx.Logger
}

func New(store *storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, log: log}
}

// CleanupBlockedUser runs the cascade for a confirmed block: archive every
// active route and trip the user owns (history stays for statistics), delete
// their notify_state rows and their settings row.
//
// The cascade is one transaction: either everything lands or the whole thing
// rolls back and the error is reported as a retryable ErrCleanupFailed.
// Idempotent: archived rows and deleted rows simply no longer match.
func (s *Service) CleanupBlockedUser(ctx context.Context, userID int64) (Result, error) {
	var res Result
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		if res.RoutesArchived, err = tx.ArchiveRoutesByOwner(ctx, userID); err != nil {
			return err
		}
		if res.TripsArchived, err = tx.ArchiveTripsByOwner(ctx, userID); err != nil {
			return err
		}
		if _, err = tx.DeleteNotifyStateByUser(ctx, userID); err != nil {
			return err
		}
		if res.SettingsDeleted, err = tx.DeleteUserSettings(ctx, userID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: user %d: %v", track.ErrCleanupFailed, userID, err)
	}

	if res.RoutesArchived > 0 || res.TripsArchived > 0 || res.SettingsDeleted {
		s.log.Info("blocked user cleaned up",
			logx.Int64("user_id", userID),
			logx.Int64("routes_archived", res.RoutesArchived),
			logx.Int64("trips_archived", res.TripsArchived),
			logx.Bool("settings_deleted", res.SettingsDeleted))
	}
	return res, nil
}
