package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Weight keys recognized in referral.scoring_weights.
const (
	WeightVolume      = "volume"
	WeightReach       = "reach"
	WeightRecency     = "recency"
	WeightStaffAssist = "staff_assist"
)

// DefaultStaffTier is the multiplier applied to staff without a configured tier.
const DefaultStaffTier = "default"

// SetDefaults seeds scalar defaults so the app can run with a minimal config.
// Map-valued settings are filled by applyDefaults after unmarshaling because
// viper merges nested default keys into user supplied maps.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "refintel")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("engine.worker_concurrency", 2)
	v.SetDefault("engine.persist_timeout", "30s")

	v.SetDefault("referral.version", "v1")
	v.SetDefault("referral.burst_window", "720h")
	v.SetDefault("referral.burst_min_count", 3)
	v.SetDefault("referral.dormancy_gap", "2160h")
	v.SetDefault("referral.max_chain_depth", 6)
	v.SetDefault("referral.similarity_threshold", 0.92)
	v.SetDefault("referral.period", "month")
	v.SetDefault("referral.top_n", 10)
}

func defaultScoringWeights() map[string]float64 {
	return map[string]float64{
		WeightVolume:      0.35,
		WeightReach:       0.25,
		WeightRecency:     0.25,
		WeightStaffAssist: 0.15,
	}
}

func defaultEntitySuffixes() []string {
	return []string{"inc", "llc", "ltd", "corp", "corporation", "co", "company", "branch", "br"}
}

// applyDefaults fills map and slice settings left empty by the user.
func (c *Config) applyDefaults() {
	r := &c.Referral
	if len(r.ScoringWeights) == 0 {
		r.ScoringWeights = defaultScoringWeights()
	}
	tiers := make(map[string]float64, len(r.StaffWeights)+1)
	for tier, m := range r.StaffWeights {
		tiers[strings.ToLower(tier)] = m
	}
	r.StaffWeights = tiers
	if _, ok := r.StaffWeights[DefaultStaffTier]; !ok {
		r.StaffWeights[DefaultStaffTier] = 1.0
	}
	if r.CodePrefixMap == nil {
		r.CodePrefixMap = map[string]string{}
	}
	if r.EntitySuffixes == nil {
		r.EntitySuffixes = defaultEntitySuffixes()
	}
}

// Default returns a fully populated, valid configuration. It is what an empty
// config file produces and is convenient for library callers and tests.
func Default() *Config {
	cfg := &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "refintel",
		},
		Engine: EngineConfig{
			WorkerConcurrency: 2,
			PersistTimeout:    30 * time.Second,
		},
		Referral: ReferralConfig{
			Version:             "v1",
			BurstWindow:         30 * 24 * time.Hour,
			BurstMinCount:       3,
			DormancyGap:         90 * 24 * time.Hour,
			MaxChainDepth:       6,
			SimilarityThreshold: 0.92,
			Period:              "month",
			TopN:                10,
		},
	}
	cfg.applyDefaults()
	return cfg
}
