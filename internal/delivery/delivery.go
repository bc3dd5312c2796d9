// Package delivery defines the dispatch collaborator boundary: the outcome a
// transport reports for one send attempt, and the classifier that decides
// whether a failure means the recipient blocked the bot.
package delivery

import (
	"context"

	"farebot/internal/track"
)

// Payload is what the transport renders and sends. Rendering itself is the
// transport's business; the core only carries the facts.
type Payload struct {
	Target   track.Target
	Tier     track.Tier
	Price    float64
	Currency string
	Text     string
}

// Outcome is the transport's report for one attempt. ErrorCode/ErrorMessage
// are opaque strings from the transport; Classify maps them to a FailureKind.
type Outcome struct {
	Success      bool
	ErrorCode    string
	ErrorMessage string
}

// Dispatcher is the transport collaborator.
type Dispatcher interface {
	SendNotification(ctx context.Context, userID int64, p Payload) Outcome
}

// FailureKind is the closed classification of a failed outcome.
type FailureKind string

const (
	// FailureBlocked: the recipient is unreachable for good (blocked the
	// bot, deleted the account, deleted the chat). Triggers cleanup, never
	// retried.
	FailureBlocked FailureKind = "blocked"
	// FailureTransient: network trouble, rate limiting, unknown errors.
	// Left to the transport's own retry policy; no cleanup.
	FailureTransient FailureKind = "transient"
)
