package watch

import (
	"context"
	"errors"
	"time"

	"farebot/internal/classify"
	"farebot/internal/delivery"
	"farebot/internal/storage"
	"farebot/internal/track"
	logx "farebot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job) {
	for {
		// fast-exit so stop wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.processTarget(ctx, j.target)
		}
	}
}

// processTarget runs the full pipeline for one target: fetch, classify,
// gate, dispatch, react to the outcome.
func (s *Service) processTarget(ctx context.Context, target track.Target) {
	log := s.log.With(logx.String("target", string(target.Kind)), logx.Int64("target_id", target.ID))

	meta, err := s.store.TargetMeta(ctx, target)
	if err != nil {
		if !errors.Is(err, track.ErrNotFound) {
			log.Error("target meta", logx.Err(err))
		}
		return
	}
	if meta.State != track.StateActive {
		return
	}

	obs, err := s.fetch(ctx, target)
	if err != nil {
		log.Warn("fetch failed", logx.Err(err))
		return
	}
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = nowUTC()
	}

	// History must be read before the new point is appended: the classifier
	// compares against prior observations only.
	history, err := s.store.History(ctx, target, 0)
	if err != nil {
		log.Error("load history", logx.Err(err))
		return
	}

	tier, err := classify.Classify(obs, history, meta.Baseline, s.policy())
	if err != nil {
		log.Error("classify", logx.Err(err))
		return
	}

	if err := s.store.AppendObservation(ctx, obs); err != nil {
		log.Error("append observation", logx.Err(err))
		return
	}

	if tier == track.TierNone {
		return
	}

	decision, err := s.gate.TryAcquire(ctx, meta.OwnerID, target, tier, obs.Price, nowUTC())
	if err != nil {
		log.Error("gate", logx.Err(err))
		return
	}
	if !decision.Allowed {
		return
	}

	s.deliver(ctx, meta.OwnerID, delivery.Payload{
		Target:   target,
		Tier:     tier,
		Price:    obs.Price,
		Currency: obs.Currency,
	}, log)
}

func (s *Service) fetch(ctx context.Context, target track.Target) (track.PriceObservation, error) {
	switch target.Kind {
	case track.KindTrip:
		t, err := s.store.GetTrip(ctx, target.ID)
		if err != nil {
			return track.PriceObservation{}, err
		}
		obs, result, err := s.fetcher.FetchTrip(ctx, t)
		if err != nil {
			return track.PriceObservation{}, err
		}
		if err := s.store.PutTripResult(ctx, t.ID, result); err != nil {
			return track.PriceObservation{}, err
		}
		return obs, nil
	default:
		r, err := s.store.GetRoute(ctx, target.ID)
		if err != nil {
			return track.PriceObservation{}, err
		}
		return s.fetcher.FetchRoute(ctx, r)
	}
}

// deliver sends one gated notification, retrying transient failures with a
// short backoff. Blocked outcomes are terminal: log, then cascade cleanup.
func (s *Service) deliver(ctx context.Context, userID int64, p delivery.Payload, log logx.Logger) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	retry := s.cfg.RetryMax
	var out delivery.Outcome
	for attempt := 0; ; attempt++ {
		out = s.dispatch.SendNotification(ctx, userID, p)
		if out.Success {
			s.appendOutcome(ctx, userID, p, storage.OutcomeDelivered, "")
			return
		}
		if delivery.ClassifyFailure(out) == delivery.FailureBlocked {
			break
		}
		if attempt >= retry {
			log.Warn("delivery failed",
				logx.Int64("user_id", userID),
				logx.String("code", out.ErrorCode),
				logx.String("err", out.ErrorMessage))
			s.appendOutcome(ctx, userID, p, storage.OutcomeFailed, out.ErrorCode)
			return
		}
		delay := time.Duration(200+100*attempt) * time.Millisecond
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return
		case <-tmr.C:
		}
	}

	// Confirmed block: never retried, user's tracking is torn down.
	log.Info("recipient blocked the bot", logx.Int64("user_id", userID), logx.String("code", out.ErrorCode))
	s.appendOutcome(ctx, userID, p, storage.OutcomeBlocked, out.ErrorCode)
	if _, err := s.cleanup.CleanupBlockedUser(ctx, userID); err != nil {
		// Retryable; the next blocked delivery for this user triggers it again.
		log.Error("cleanup after block", logx.Err(err))
	}
}

func (s *Service) appendOutcome(ctx context.Context, userID int64, p delivery.Payload, outcome, reason string) {
	if err := s.store.AppendLog(ctx, storage.LogEntry{
		UserID:  userID,
		Target:  p.Target,
		Tier:    p.Tier,
		Outcome: outcome,
		Reason:  reason,
		At:      nowUTC(),
	}); err != nil {
		s.log.Error("append delivery log", logx.Err(err))
	}
}
