package config

import (
	"fmt"
	"time"

	"farebot/internal/classify"
	"farebot/internal/plans"
	"farebot/internal/track"
)

// Config is the whole config file. All durations are Go duration strings
// (e.g. "500ms", "30m", "24h").
type Config struct {
	Telegram   TelegramConfig        `json:"telegram"`
	Logging    LoggingConfig         `json:"logging"`
	Storage    StorageConfig         `json:"storage"`
	Feed       FeedConfig            `json:"feed"`
	Watch      WatchConfig           `json:"watch"`
	Classifier ClassifierConfig      `json:"classifier"`
	Plans      map[string]PlanConfig `json:"plans,omitempty"`
	// DefaultPlan names the plan for users without a resolvable subscription.
	DefaultPlan string `json:"default_plan,omitempty"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// HistoryKeep bounds retained observations per target (default 50).
	HistoryKeep int `json:"history_keep,omitempty"`
}

// FeedConfig points at the quote collaborator (the service that actually
// scrapes fare data).
type FeedConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"`
}

type WatchConfig struct {
	Enabled    bool   `json:"enabled"`
	Schedule   string `json:"schedule,omitempty"` // cron spec or "@every 10m"
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
}

// ClassifierConfig holds the scoring thresholds. These are business knobs,
// tuned in production without redeploying; see the hot-reload manager.
type ClassifierConfig struct {
	Critical        float64 `json:"critical,omitempty"`
	High            float64 `json:"high,omitempty"`
	Medium          float64 `json:"medium,omitempty"`
	Low             float64 `json:"low,omitempty"`
	NoiseMultiplier float64 `json:"noise_multiplier,omitempty"`
	NoiseDampen     float64 `json:"noise_dampen,omitempty"`
}

type PlanConfig struct {
	Window string                      `json:"window"`
	Tiers  map[string]TierPolicyConfig `json:"tiers"`
}

type TierPolicyConfig struct {
	MaxPerWindow int    `json:"max_per_window"`
	MinInterval  string `json:"min_interval"`
}

// ClassifierPolicy converts the section to a classify.Policy, falling back to
// defaults for omitted fields.
func (c *Config) ClassifierPolicy() classify.Policy {
	p := classify.DefaultPolicy()
	cc := c.Classifier
	if cc.Critical > 0 {
		p.Critical = cc.Critical
	}
	if cc.High > 0 {
		p.High = cc.High
	}
	if cc.Medium > 0 {
		p.Medium = cc.Medium
	}
	if cc.Low > 0 {
		p.Low = cc.Low
	}
	if cc.NoiseMultiplier > 0 {
		p.NoiseMultiplier = cc.NoiseMultiplier
	}
	if cc.NoiseDampen > 0 {
		p.NoiseDampen = cc.NoiseDampen
	}
	return p
}

// PlanDefs converts the plans section. An empty section means the shipped
// defaults.
func (c *Config) PlanDefs() (map[string]plans.Plan, error) {
	if len(c.Plans) == 0 {
		return plans.DefaultPlans(), nil
	}
	out := make(map[string]plans.Plan, len(c.Plans))
	for name, pc := range c.Plans {
		window, err := ParseDurationOrDefault("plans."+name+".window", pc.Window, 24*time.Hour)
		if err != nil {
			return nil, err
		}
		tiers := make(map[track.Tier]plans.TierPolicy, len(pc.Tiers))
		for tierName, tp := range pc.Tiers {
			tier := track.ParseTier(tierName)
			if tier == track.TierNone {
				return nil, fmt.Errorf("plans.%s: unknown tier %q", name, tierName)
			}
			interval, err := ParseDurationField("plans."+name+".tiers."+tierName+".min_interval", tp.MinInterval)
			if err != nil {
				return nil, err
			}
			tiers[tier] = plans.TierPolicy{MaxPerWindow: tp.MaxPerWindow, MinInterval: interval}
		}
		out[name] = plans.Plan{Window: window, Tiers: tiers}
	}
	return out, nil
}

// Validate rejects configs that would misbehave at runtime rather than at
// load time.
func (c *Config) Validate() error {
	if err := c.ClassifierPolicy().Validate(); err != nil {
		return err
	}
	defs, err := c.PlanDefs()
	if err != nil {
		return err
	}
	if c.DefaultPlan != "" {
		if _, ok := defs[c.DefaultPlan]; !ok {
			return fmt.Errorf("default_plan %q is not defined", c.DefaultPlan)
		}
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("feed.timeout", c.Feed.Timeout); err != nil {
		return err
	}
	return nil
}
