// Package config holds the application's root configuration. The referral
// section is validated once at load time; a Config that passed Validate is
// treated as immutable for the lifetime of a run.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Referral ReferralConfig `mapstructure:"referral"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// PostgresConfig holds settings for the database connection.
// An empty URL disables persistence.
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// EngineConfig holds settings for the batch runner.
type EngineConfig struct {
	WorkerConcurrency int           `mapstructure:"worker_concurrency"`
	PersistTimeout    time.Duration `mapstructure:"persist_timeout"`
}

// ReferralConfig is the `referral:` section consumed by the intelligence engine.
type ReferralConfig struct {
	Version             string             `mapstructure:"version" yaml:"version"`
	ScoringWeights      map[string]float64 `mapstructure:"scoring_weights" yaml:"scoring_weights"`
	StaffWeights        map[string]float64 `mapstructure:"staff_weights" yaml:"staff_weights"`
	BurstWindow         time.Duration      `mapstructure:"burst_window" yaml:"burst_window"`
	BurstMinCount       int                `mapstructure:"burst_min_count" yaml:"burst_min_count"`
	DormancyGap         time.Duration      `mapstructure:"dormancy_gap" yaml:"dormancy_gap"`
	MaxChainDepth       int                `mapstructure:"max_chain_depth" yaml:"max_chain_depth"`
	CodePrefixMap       map[string]string  `mapstructure:"code_prefix_map" yaml:"code_prefix_map"`
	SimilarityThreshold float64            `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	EntitySuffixes      []string           `mapstructure:"entity_suffixes" yaml:"entity_suffixes"`
	Period              string             `mapstructure:"period" yaml:"period"`
	AsOf                string             `mapstructure:"as_of" yaml:"as_of"`
	TopN                int                `mapstructure:"top_n" yaml:"top_n"`
}

// ScoringWeights is the closed set of recognized weight keys.
type ScoringWeights struct {
	Volume      float64 `json:"volume" yaml:"volume"`
	Reach       float64 `json:"reach" yaml:"reach"`
	Recency     float64 `json:"recency" yaml:"recency"`
	StaffAssist float64 `json:"staff_assist" yaml:"staff_assist"`
}

// Sum returns the total of all weights.
func (w ScoringWeights) Sum() float64 {
	return w.Volume + w.Reach + w.Recency + w.StaffAssist
}

// Load initializes the configuration singleton from Viper.
// The loaded configuration is validated before it becomes visible.
func Load(v *viper.Viper) error {
	var loadErr error
	once.Do(func() {
		cfg, err := NewFromViper(v)
		if err != nil {
			loadErr = err
			return
		}
		Set(cfg)
	})
	return loadErr
}

// NewFromViper unmarshals and validates a configuration without touching the singleton.
func NewFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Set replaces the global configuration instance.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}
