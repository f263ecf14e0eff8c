package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// WeightSumTolerance is the allowed deviation of the scoring weight total from 1.0.
const WeightSumTolerance = 1e-6

// MaxChainDepthLimit bounds max_chain_depth so traversals stay cheap.
const MaxChainDepthLimit = 32

// ErrInvalidConfig is matched by every ConfigError via errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError reports a configuration value that fails validation.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets callers match any ConfigError with errors.Is(err, ErrInvalidConfig).
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func invalid(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the configuration for errors and inconsistencies.
func (c *Config) Validate() error {
	if c.Engine.WorkerConcurrency <= 0 {
		return invalid("engine.worker_concurrency", "must be a positive integer")
	}
	if c.Engine.PersistTimeout < 0 {
		return invalid("engine.persist_timeout", "must not be negative")
	}
	switch c.Logger.Format {
	case "", "console", "json":
	default:
		return invalid("logger.format", "must be console or json, got %q", c.Logger.Format)
	}
	return c.Referral.Validate()
}

// Validate checks the referral section. It runs before any record is processed.
func (r *ReferralConfig) Validate() error {
	if strings.TrimSpace(r.Version) == "" {
		return invalid("referral.version", "is a required configuration field")
	}
	if _, err := r.Weights(); err != nil {
		return err
	}
	if err := r.validateStaffWeights(); err != nil {
		return err
	}
	if r.BurstWindow <= 0 {
		return invalid("referral.burst_window", "must be a positive duration")
	}
	if r.BurstMinCount < 2 {
		return invalid("referral.burst_min_count", "must be at least 2, got %d", r.BurstMinCount)
	}
	if r.DormancyGap <= 0 {
		return invalid("referral.dormancy_gap", "must be a positive duration")
	}
	if r.MaxChainDepth < 1 || r.MaxChainDepth > MaxChainDepthLimit {
		return invalid("referral.max_chain_depth", "must be between 1 and %d, got %d", MaxChainDepthLimit, r.MaxChainDepth)
	}
	if err := r.validatePrefixMap(); err != nil {
		return err
	}
	if math.IsNaN(r.SimilarityThreshold) || r.SimilarityThreshold <= 0 || r.SimilarityThreshold > 1 {
		return invalid("referral.similarity_threshold", "must be in (0, 1], got %v", r.SimilarityThreshold)
	}
	switch r.Period {
	case "day", "week", "month":
	default:
		return invalid("referral.period", "must be day, week or month, got %q", r.Period)
	}
	if _, _, err := r.AsOfTime(); err != nil {
		return err
	}
	if r.TopN <= 0 {
		return invalid("referral.top_n", "must be a positive integer")
	}
	return nil
}

// Weights converts the scoring_weights map into the closed, typed weight set.
// Unknown keys, negative or non-finite values, and totals other than 1.0 are rejected.
func (r *ReferralConfig) Weights() (ScoringWeights, error) {
	var w ScoringWeights
	keys := make([]string, 0, len(r.ScoringWeights))
	for k := range r.ScoringWeights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := r.ScoringWeights[k]
		field := "referral.scoring_weights." + k
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ScoringWeights{}, invalid(field, "must be a finite number")
		}
		if v < 0 {
			return ScoringWeights{}, invalid(field, "must not be negative, got %v", v)
		}
		switch strings.ToLower(k) {
		case WeightVolume:
			w.Volume = v
		case WeightReach:
			w.Reach = v
		case WeightRecency:
			w.Recency = v
		case WeightStaffAssist:
			w.StaffAssist = v
		default:
			return ScoringWeights{}, invalid(field, "unknown weight key (allowed: %s, %s, %s, %s)",
				WeightVolume, WeightReach, WeightRecency, WeightStaffAssist)
		}
	}

	if sum := w.Sum(); math.Abs(sum-1.0) > WeightSumTolerance {
		return ScoringWeights{}, invalid("referral.scoring_weights", "must sum to 1.0, got %.6f", sum)
	}
	return w, nil
}

// StaffMultiplier returns the multiplier for a tier, falling back to the default tier.
func (r *ReferralConfig) StaffMultiplier(tier string) float64 {
	if m, ok := r.StaffWeights[strings.ToLower(tier)]; ok && tier != "" {
		return m
	}
	return r.StaffWeights[DefaultStaffTier]
}

// MaxStaffMultiplier returns the largest configured tier multiplier.
func (r *ReferralConfig) MaxStaffMultiplier() float64 {
	max := 0.0
	for _, m := range r.StaffWeights {
		if m > max {
			max = m
		}
	}
	return max
}

func (r *ReferralConfig) validateStaffWeights() error {
	if _, ok := r.StaffWeights[DefaultStaffTier]; !ok {
		return invalid("referral.staff_weights", "must define the %q tier", DefaultStaffTier)
	}
	for tier, m := range r.StaffWeights {
		field := "referral.staff_weights." + tier
		if strings.TrimSpace(tier) == "" {
			return invalid("referral.staff_weights", "tier names must not be empty")
		}
		if math.IsNaN(m) || math.IsInf(m, 0) || m < 0 {
			return invalid(field, "must be a finite, non-negative multiplier, got %v", m)
		}
	}
	return nil
}

func (r *ReferralConfig) validatePrefixMap() error {
	for prefix, label := range r.CodePrefixMap {
		if strings.TrimSpace(prefix) == "" {
			return invalid("referral.code_prefix_map", "prefixes must not be empty")
		}
		if strings.TrimSpace(label) == "" {
			return invalid("referral.code_prefix_map."+prefix, "label must not be empty")
		}
	}
	return nil
}

// AsOfTime parses the configured as-of date. The boolean is false when no
// date is configured, in which case the run derives it from its own data.
func (r *ReferralConfig) AsOfTime() (time.Time, bool, error) {
	raw := strings.TrimSpace(r.AsOf)
	if raw == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true, nil
		}
	}
	return time.Time{}, false, invalid("referral.as_of", "must be an RFC3339 timestamp or YYYY-MM-DD date, got %q", raw)
}
