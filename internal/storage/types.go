package storage

import (
	"time"

	"farebot/internal/track"
)

// Config configures the store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
	// HistoryKeep bounds how many observations are retained per target.
	// 0 falls back to defaultHistoryKeep.
	HistoryKeep int
}

const defaultHistoryKeep = 50

// NotifyState is the per (user, target) quota/cooldown record. Created lazily
// on the first gate acquisition and mutated only inside gate transactions.
type NotifyState struct {
	UserID        int64
	Target        track.Target
	WindowStart   time.Time
	SentInWindow  int
	LastSentAt    time.Time // zero if never sent
	LastSentPrice float64
}

// Outcome values for notify_log rows.
const (
	OutcomeAllowed   = "allowed"
	OutcomeDenied    = "denied"
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeBlocked   = "blocked"
)

// LogEntry is one append-only notify_log row. Rows are never mutated after
// insert; delivery results are appended as new rows, not updates.
type LogEntry struct {
	ID     string // uuid, generated on append when empty
	UserID int64
	Target track.Target
	Tier   track.Tier
	// Outcome is one of the Outcome* constants; Reason carries the gate's
	// denial reason for OutcomeDenied rows.
	Outcome string
	Reason  string
	At      time.Time
}

// UserSettings is the per-user row deleted by the cleanup cascade.
type UserSettings struct {
	UserID    int64
	Plan      string
	Currency  string
	CreatedAt time.Time
}

// TargetMeta is the snapshot the pipeline needs before classifying:
// who owns the target, its baseline, and whether it is still active.
type TargetMeta struct {
	OwnerID  int64
	Baseline float64
	Currency string
	State    track.LifecycleState
}
