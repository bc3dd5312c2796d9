// Package plans resolves a user's subscription plan into the quota/cooldown
// policy the gate enforces. The payment collaborator is injected as a
// Resolver so the whole thing is testable with a fake; there is no package
// level singleton.
package plans

import (
	"context"
	"errors"
	"sync"
	"time"

	"farebot/internal/storage"
	"farebot/internal/track"
	logx "farebot/pkg/logx"
)

// TierPolicy is the gate policy for one priority tier under one plan.
type TierPolicy struct {
	MaxPerWindow int
	MinInterval  time.Duration
}

// Plan groups per-tier policies with the quota window length.
// Higher tiers get larger quotas and shorter cooldowns.
type Plan struct {
	Window time.Duration
	Tiers  map[track.Tier]TierPolicy
}

// Resolver answers "which plan is this user on". Implemented by the payment
// collaborator in production and by fakes in tests.
type Resolver interface {
	PlanFor(ctx context.Context, userID int64) (string, error)
}

// SettingsResolver reads the plan from the user's settings row. Users whose
// settings were cleaned up (or never created) fall back to the default plan.
type SettingsResolver struct {
	Store *storage.Store
}

func (r SettingsResolver) PlanFor(ctx context.Context, userID int64) (string, error) {
	u, err := r.Store.GetUserSettings(ctx, userID)
	if errors.Is(err, track.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.Plan, nil
}

// Fixed is a Resolver that always answers the same plan. Test helper.
type Fixed string

func (f Fixed) PlanFor(context.Context, int64) (string, error) { return string(f), nil }

// Service maps plan names to Plan definitions, consulting the Resolver per
// lookup so plan upgrades take effect on the next gate call.
type Service struct {
	mu          sync.RWMutex
	plans       map[string]Plan
	defaultPlan string

	resolver Resolver
	log      logx.Logger
}

func New(defs map[string]Plan, defaultPlan string, resolver Resolver, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{resolver: resolver, log: log}
	s.Apply(defs, defaultPlan)
	return s
}

// Apply swaps the plan definitions at runtime (config hot reload).
// Safe to call concurrently with PolicyFor.
func (s *Service) Apply(defs map[string]Plan, defaultPlan string) {
	if len(defs) == 0 {
		defs = DefaultPlans()
	}
	if defaultPlan == "" {
		defaultPlan = "free"
	}
	s.mu.Lock()
	s.plans = defs
	s.defaultPlan = defaultPlan
	s.mu.Unlock()
}

// PolicyFor resolves the user's plan and returns the policy for the tier plus
// the plan's quota window. Unknown plans degrade to the default plan rather
// than failing a notification that already classified.
func (s *Service) PolicyFor(ctx context.Context, userID int64, tier track.Tier) (TierPolicy, time.Duration, error) {
	s.mu.RLock()
	defs := s.plans
	name := s.defaultPlan
	s.mu.RUnlock()

	if s.resolver != nil {
		got, err := s.resolver.PlanFor(ctx, userID)
		if err != nil {
			return TierPolicy{}, 0, err
		}
		if got != "" {
			name = got
		}
	}
	p, ok := defs[name]
	if !ok {
		s.log.Warn("unknown plan, using default", logx.String("plan", name), logx.Int64("user_id", userID))
		s.mu.RLock()
		p = defs[s.defaultPlan]
		s.mu.RUnlock()
	}
	return p.Tiers[tier], p.Window, nil
}

// DefaultPlans mirrors the shipped config defaults: a free plan and an
// elevated one with doubled quotas and halved cooldowns.
func DefaultPlans() map[string]Plan {
	free := Plan{
		Window: 24 * time.Hour,
		Tiers: map[track.Tier]TierPolicy{
			track.TierCritical: {MaxPerWindow: 3, MinInterval: 30 * time.Minute},
			track.TierHigh:     {MaxPerWindow: 2, MinInterval: 2 * time.Hour},
			track.TierMedium:   {MaxPerWindow: 1, MinInterval: 6 * time.Hour},
			track.TierLow:      {MaxPerWindow: 1, MinInterval: 12 * time.Hour},
		},
	}
	pro := Plan{
		Window: 24 * time.Hour,
		Tiers: map[track.Tier]TierPolicy{
			track.TierCritical: {MaxPerWindow: 6, MinInterval: 15 * time.Minute},
			track.TierHigh:     {MaxPerWindow: 4, MinInterval: time.Hour},
			track.TierMedium:   {MaxPerWindow: 2, MinInterval: 3 * time.Hour},
			track.TierLow:      {MaxPerWindow: 2, MinInterval: 6 * time.Hour},
		},
	}
	return map[string]Plan{"free": free, "pro": pro}
}
