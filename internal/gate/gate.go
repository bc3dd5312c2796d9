// Package gate decides whether a classified price change may be delivered
// right now. Two throttles apply independently and both must pass: a per
// (user, target) quota inside a fixed window, and a per-target cooldown since
// the last allowed send.
//
// The whole check-and-update runs in one store transaction, so two concurrent
// acquisitions for the same target can never both see capacity: whichever
// commits first consumes it, the other observes the updated state.
package gate

import (
	"context"
	"errors"
	"time"

	"farebot/internal/plans"
	"farebot/internal/storage"
	"farebot/internal/track"
	logx "farebot/pkg/logx"
)

// Reason explains a denial. Denials are decisions, not errors: they surface
// in the decision value and the notification log, never to the end user.
type Reason string

const (
	ReasonQuotaExceeded  Reason = "quota_exceeded"
	ReasonCooldownActive Reason = "cooldown_active"
	ReasonTargetArchived Reason = "target_archived"
	ReasonTierNone       Reason = "tier_none"
)

// Decision is the gate's answer for one acquisition attempt.
type Decision struct {
	Allowed bool
	Reason  Reason // empty when allowed
}

type Gate struct {
	store *storage.Store
	plans *plans.Service
	log   logx.Logger
}

func New(store *storage.Store, plans *plans.Service, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{store: store, plans: plans, log: log}
}

// TryAcquire reserves one notification slot for (userID, target) at tier.
//
// On success the quota state is consumed and an "allowed" log row is appended
// atomically. On denial nothing about the quota state changes; the attempt is
// still logged with its reason so statistics can see throttled sends.
//
// A target archived by a concurrent cleanup fails closed with
// ReasonTargetArchived; in-flight work for that target should stop.
func (g *Gate) TryAcquire(ctx context.Context, userID int64, target track.Target, tier track.Tier, price float64, now time.Time) (Decision, error) {
	if tier == track.TierNone {
		return Decision{Allowed: false, Reason: ReasonTierNone}, nil
	}

	policy, window, err := g.plans.PolicyFor(ctx, userID, tier)
	if err != nil {
		return Decision{}, err
	}

	var decision Decision
	err = g.store.WithTx(ctx, func(tx *storage.Tx) error {
		meta, err := tx.TargetMeta(ctx, target)
		if err != nil && !errors.Is(err, track.ErrNotFound) {
			return err
		}
		if err != nil || meta.State != track.StateActive {
			// Missing and archived targets are the same from the gate's
			// view: the slot must not be consumed.
			decision = Decision{Allowed: false, Reason: ReasonTargetArchived}
			return tx.AppendLog(ctx, storage.LogEntry{
				UserID: userID, Target: target, Tier: tier,
				Outcome: storage.OutcomeDenied, Reason: string(ReasonTargetArchived), At: now,
			})
		}

		st, found, err := tx.GetNotifyState(ctx, userID, target)
		if err != nil {
			return err
		}
		if !found || now.Sub(st.WindowStart) >= window {
			// Lazy creation and window rollover look the same: a fresh
			// window starting now with nothing consumed. The reset is only
			// persisted if this acquisition is allowed.
			st.WindowStart = now
			st.SentInWindow = 0
		}

		if st.SentInWindow >= policy.MaxPerWindow {
			decision = Decision{Allowed: false, Reason: ReasonQuotaExceeded}
			return tx.AppendLog(ctx, storage.LogEntry{
				UserID: userID, Target: target, Tier: tier,
				Outcome: storage.OutcomeDenied, Reason: string(ReasonQuotaExceeded), At: now,
			})
		}
		if !st.LastSentAt.IsZero() && now.Sub(st.LastSentAt) < policy.MinInterval {
			decision = Decision{Allowed: false, Reason: ReasonCooldownActive}
			return tx.AppendLog(ctx, storage.LogEntry{
				UserID: userID, Target: target, Tier: tier,
				Outcome: storage.OutcomeDenied, Reason: string(ReasonCooldownActive), At: now,
			})
		}

		st.SentInWindow++
		st.LastSentAt = now
		st.LastSentPrice = price
		if err := tx.PutNotifyState(ctx, st); err != nil {
			return err
		}
		if err := tx.AppendLog(ctx, storage.LogEntry{
			UserID: userID, Target: target, Tier: tier,
			Outcome: storage.OutcomeAllowed, At: now,
		}); err != nil {
			return err
		}
		decision = Decision{Allowed: true}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	if !decision.Allowed {
		g.log.Debug("notification throttled",
			logx.Int64("user_id", userID),
			logx.String("target", string(target.Kind)),
			logx.Int64("target_id", target.ID),
			logx.String("tier", tier.String()),
			logx.String("reason", string(decision.Reason)))
	}
	return decision, nil
}
