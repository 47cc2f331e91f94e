// Package config provides configuration management for memcore: environment
// variables, an optional YAML overlay, and validated defaults for every
// tunable named in the component design (weights, decay constants, TTLs,
// thresholds, windows, deadlines, the maintenance interval).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration assembled from defaults, an
// optional YAML file, and environment variable overrides (in that order of
// increasing precedence).
type Config struct {
	Control       ControlConfig       `yaml:"control"`
	Router        RouterConfig        `yaml:"router"`
	Hot           HotConfig           `yaml:"hot"`
	Warm          WarmConfig          `yaml:"warm"`
	Cold          ColdConfig          `yaml:"cold"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Placement     PlacementConfig     `yaml:"placement"`
	Decay         DecayConfig         `yaml:"decay"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Review        ReviewConfig        `yaml:"review"`
	Forgetting    ForgettingConfig    `yaml:"forgetting"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
	Overflow      OverflowConfig      `yaml:"overflow"`
	EmbedCache    EmbedCacheConfig    `yaml:"embed_cache"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ControlConfig configures the public HTTP control surface (§6).
type ControlConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	SearchDeadline time.Duration `yaml:"search_deadline"` // default fan-out deadline, §4.3
}

// RouterConfig configures the C3 tier router's per-tier circuit breakers
// (§2, "circuit breaking ... short-circuit further calls"), one breaker per
// tier so a failing backend doesn't consume the fan-out deadline on every
// call while it recovers.
type RouterConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`       // consecutive failures before opening
	SuccessThreshold      int           `yaml:"success_threshold"`       // half-open successes before closing
	OpenTimeout           time.Duration `yaml:"open_timeout"`            // time before a half-open probe
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests"` // concurrent probes allowed half-open
}

// HotConfig configures the hot-tier reference backend (Redis, native TTL).
type HotConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"-"`
	DB           int           `yaml:"db"`
	DefaultTTL   time.Duration `yaml:"default_ttl"`   // §4.4 hot->warm TTL, default 6h
	MaxTTL       time.Duration `yaml:"max_ttl"`        // extensible cap, default 24h
	TTLExtension time.Duration `yaml:"ttl_extension"`  // +3h per access, §4.4
	DialTimeout  time.Duration `yaml:"dial_timeout"`
}

// WarmConfig configures the warm-tier reference backend (Qdrant vector
// search, or a SQLite brute-force fallback sampler when vector search is
// unavailable).
type WarmConfig struct {
	QdrantAddr         string `yaml:"qdrant_addr"`
	QdrantAPIKey       string `yaml:"-"`
	QdrantCollection   string `yaml:"qdrant_collection"`
	UseTLS             bool   `yaml:"use_tls"`
	FallbackSQLitePath string `yaml:"fallback_sqlite_path"`
	EmbeddingDim       int    `yaml:"embedding_dim"` // D, §3.1 — commonly 1536
}

// ColdConfig configures the cold-tier reference backend (Postgres full-text
// search over a tsvector column).
type ColdConfig struct {
	DSN              string        `yaml:"-"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
}

// ScoringConfig holds the C1 importance/decay/privacy constants (§4.1).
type ScoringConfig struct {
	RecencyLambda       float64            `yaml:"recency_lambda"` // 0.05
	FrequencyLogBase    float64            `yaml:"frequency_log_base"` // log(1+100)
	ImportanceWeights   ImportanceWeights  `yaml:"importance_weights"`
	DecayBaseRate       float64            `yaml:"decay_base_rate"`         // 0.1
	AccessModRecent     float64            `yaml:"access_mod_recent"`       // <=24h: 0.5
	AccessModWeek       float64            `yaml:"access_mod_week"`         // <=7d: 0.7
	AccessModNever      float64            `yaml:"access_mod_never"`        // never accessed: 1.5
	AccessModDefault    float64            `yaml:"access_mod_default"`      // otherwise: 1.0
	TypeDecayModifiers  map[string]float64 `yaml:"type_decay_modifiers"`
	ReinforcementGain   float64            `yaml:"reinforcement_gain"` // 0.15
	PrivacyPIIWeight    float64            `yaml:"privacy_pii_weight"`      // 0.4
	PrivacyFinWeight    float64            `yaml:"privacy_financial_weight"` // 0.4
	PrivacyAgeWeight    float64            `yaml:"privacy_age_weight"`      // 0.2
	PrivacyAgeHorizon   float64            `yaml:"privacy_age_horizon_days"` // 365
}

// ImportanceWeights are the default factor weights for C1's importance sum;
// must sum to 1.0 (validated).
type ImportanceWeights struct {
	Recency   float64 `yaml:"recency"`
	Frequency float64 `yaml:"frequency"`
	Salience  float64 `yaml:"salience"`
	Relevance float64 `yaml:"relevance"`
}

// PlacementConfig holds the C4 promotion/demotion thresholds (§4.4).
type PlacementConfig struct {
	ColdToWarmAccess7d       int           `yaml:"cold_to_warm_access_7d"`        // >=3
	ColdToWarmRelevance      float64       `yaml:"cold_to_warm_relevance"`        // >=0.8
	WarmToHotAccess24h       int           `yaml:"warm_to_hot_access_24h"`        // >=5
	WarmToHotStrength        float64       `yaml:"warm_to_hot_strength"`          // >=0.6
	HotToWarmAccessInTTL     int           `yaml:"hot_to_warm_access_in_ttl"`     // <5
	WarmToColdStrength       float64       `yaml:"warm_to_cold_strength"`         // <0.30
	WarmToColdAgeDays        float64       `yaml:"warm_to_cold_age_days"`         // >90
	WarmToColdAccess30d      int           `yaml:"warm_to_cold_access_30d"`       // ==0
	MoveMaxAttempts          int           `yaml:"move_max_attempts"`             // 3
	MoveBackoffInitial       time.Duration `yaml:"move_backoff_initial"`          // 100ms
	MoveBackoffStep          time.Duration `yaml:"move_backoff_step"`             // 500ms
	MoveBackoffMax           time.Duration `yaml:"move_backoff_max"`              // 2s
}

// DecayConfig holds C5 tick behavior (§4.5, §5).
type DecayConfig struct {
	MinInterval    time.Duration `yaml:"min_interval"`     // >=1 day
	BatchSize      int           `yaml:"batch_size"`       // 1000
	YieldEvery     int           `yaml:"yield_every"`       // 1000 records
	YieldAfter     time.Duration `yaml:"yield_after"`       // 250ms
}

// ConsolidationConfig holds C6 clustering thresholds (§4.6).
type ConsolidationConfig struct {
	TriggerRecordCount   int           `yaml:"trigger_record_count"`    // >10000
	TriggerByteFraction  float64       `yaml:"trigger_byte_fraction"`   // >0.8 of budget
	TriggerInterval      time.Duration `yaml:"trigger_interval"`        // daily
	SampleSize           int           `yaml:"sample_size"`             // N=5000
	DistanceThreshold    float64       `yaml:"distance_threshold"`      // 0.3 (similarity > 0.7)
	TemporalBonusWindow  time.Duration `yaml:"temporal_bonus_window"`   // 1h
	TemporalBonusWeight  float64       `yaml:"temporal_bonus_weight"`   // 0.1
	ConversationBonus    float64       `yaml:"conversation_bonus"`      // 0.1
	LinkClusterMaxSize   int           `yaml:"link_cluster_max_size"`   // <=3 => LINK
	LowImportanceThresh  float64       `yaml:"low_importance_threshold"` // <0.4 => SUMMARIZE
	HighImportanceThresh float64       `yaml:"high_importance_threshold"` // >=0.7 => KEEP_AND_SUMMARIZE split
}

// ReviewConfig holds C7 spaced-repetition constants (§4.7).
type ReviewConfig struct {
	InitialIntervalDays   float64 `yaml:"initial_interval_days"`  // 1
	EasinessBase          float64 `yaml:"easiness_base"`          // 1.3
	EasinessImportanceCoef float64 `yaml:"easiness_importance_coef"` // 1.7
	EasinessMin           float64 `yaml:"easiness_min"`           // 1.3
	EasinessMax           float64 `yaml:"easiness_max"`           // 3.0
	SecondReviewFloorDays float64 `yaml:"second_review_floor_days"` // 6
	OverdueLogBase        float64 `yaml:"overdue_log_base"`        // 30
	PriorityOverdueWeight float64 `yaml:"priority_overdue_weight"` // 0.4
	PriorityImportanceWeight float64 `yaml:"priority_importance_weight"` // 0.3
	PriorityWeaknessWeight float64 `yaml:"priority_weakness_weight"` // 0.3
	DueBoostFactor        float64 `yaml:"due_boost_factor"`        // 1.5
}

// ForgettingConfig holds C8 expiration rules (§4.8).
type ForgettingConfig struct {
	PIIThreshold            float64       `yaml:"pii_threshold"`              // >0.5
	PIIAgeDays              float64       `yaml:"pii_age_days"`               // >30
	FinancialThreshold      float64       `yaml:"financial_threshold"`        // >0.5
	FinancialAgeDays        float64       `yaml:"financial_age_days"`         // >90
	EpisodicImportanceCap   float64       `yaml:"episodic_importance_cap"`    // <0.3
	EpisodicAgeDays         float64       `yaml:"episodic_age_days"`          // >180
	PrivacyRiskImmediate    float64       `yaml:"privacy_risk_immediate"`     // >0.7
	NeverForgetImportance   float64       `yaml:"never_forget_importance"`    // >0.8
	NeverForgetAccessCount  int           `yaml:"never_forget_access_count"`  // >50
	TombstoneGrace          time.Duration `yaml:"tombstone_grace"`            // 7 days
}

// MaintenanceConfig holds C9's cycle cadence and per-phase budgets (§4.9).
type MaintenanceConfig struct {
	CycleInterval time.Duration `yaml:"cycle_interval"` // default 1h
	PhaseBudget   time.Duration `yaml:"phase_budget"`   // per-phase wall time before yield
}

// OverflowConfig holds the durable overflow log's location and encryption key.
type OverflowConfig struct {
	Path          string `yaml:"path"`
	EncryptionKey string `yaml:"-"` // 32-byte key, its bytes used as-is (not decoded); nacl/secretbox
}

// EmbedCacheConfig configures the shared embedding cache (§5).
type EmbedCacheConfig struct {
	MaxBytes int64         `yaml:"max_bytes"` // default 10 MiB
	TTL      time.Duration `yaml:"ttl"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// DefaultConfig returns the configuration with every default named in §4.
func DefaultConfig() *Config {
	return &Config{
		Control: ControlConfig{
			Host:           "0.0.0.0",
			Port:           8088,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			SearchDeadline: 800 * time.Millisecond,
		},
		Router: RouterConfig{
			FailureThreshold:      5,
			SuccessThreshold:      2,
			OpenTimeout:           30 * time.Second,
			MaxConcurrentRequests: 1,
		},
		Hot: HotConfig{
			Addr:         "localhost:6379",
			DB:           0,
			DefaultTTL:   6 * time.Hour,
			MaxTTL:       24 * time.Hour,
			TTLExtension: 3 * time.Hour,
			DialTimeout:  5 * time.Second,
		},
		Warm: WarmConfig{
			QdrantAddr:         "localhost:6334",
			QdrantCollection:   "memcore_records",
			FallbackSQLitePath: "./data/warm_fallback.db",
			EmbeddingDim:       1536,
		},
		Cold: ColdConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
			QueryTimeout:    10 * time.Second,
		},
		Scoring: ScoringConfig{
			RecencyLambda:    0.05,
			FrequencyLogBase: 100,
			ImportanceWeights: ImportanceWeights{
				Recency:   0.25,
				Frequency: 0.20,
				Salience:  0.35,
				Relevance: 0.20,
			},
			DecayBaseRate:    0.1,
			AccessModRecent:  0.5,
			AccessModWeek:    0.7,
			AccessModNever:   1.5,
			AccessModDefault: 1.0,
			TypeDecayModifiers: map[string]float64{
				"episodic":   1.0,
				"semantic":   0.7,
				"procedural": 0.5,
				"emotional":  0.6,
				"system":     0.3,
			},
			ReinforcementGain: 0.15,
			PrivacyPIIWeight:  0.4,
			PrivacyFinWeight:  0.4,
			PrivacyAgeWeight:  0.2,
			PrivacyAgeHorizon: 365,
		},
		Placement: PlacementConfig{
			ColdToWarmAccess7d:   3,
			ColdToWarmRelevance:  0.8,
			WarmToHotAccess24h:   5,
			WarmToHotStrength:    0.6,
			HotToWarmAccessInTTL: 5,
			WarmToColdStrength:   0.30,
			WarmToColdAgeDays:    90,
			WarmToColdAccess30d:  0,
			MoveMaxAttempts:      3,
			MoveBackoffInitial:   100 * time.Millisecond,
			MoveBackoffStep:      500 * time.Millisecond,
			MoveBackoffMax:       2 * time.Second,
		},
		Decay: DecayConfig{
			MinInterval: 24 * time.Hour,
			BatchSize:   1000,
			YieldEvery:  1000,
			YieldAfter:  250 * time.Millisecond,
		},
		Consolidation: ConsolidationConfig{
			TriggerRecordCount:   10000,
			TriggerByteFraction:  0.8,
			TriggerInterval:      24 * time.Hour,
			SampleSize:           5000,
			DistanceThreshold:    0.3,
			TemporalBonusWindow:  time.Hour,
			TemporalBonusWeight:  0.1,
			ConversationBonus:    0.1,
			LinkClusterMaxSize:   3,
			LowImportanceThresh:  0.4,
			HighImportanceThresh: 0.7,
		},
		Review: ReviewConfig{
			InitialIntervalDays:      1,
			EasinessBase:             1.3,
			EasinessImportanceCoef:   1.7,
			EasinessMin:              1.3,
			EasinessMax:              3.0,
			SecondReviewFloorDays:    6,
			OverdueLogBase:           30,
			PriorityOverdueWeight:    0.4,
			PriorityImportanceWeight: 0.3,
			PriorityWeaknessWeight:   0.3,
			DueBoostFactor:           1.5,
		},
		Forgetting: ForgettingConfig{
			PIIThreshold:           0.5,
			PIIAgeDays:             30,
			FinancialThreshold:     0.5,
			FinancialAgeDays:       90,
			EpisodicImportanceCap:  0.3,
			EpisodicAgeDays:        180,
			PrivacyRiskImmediate:   0.7,
			NeverForgetImportance:  0.8,
			NeverForgetAccessCount: 50,
			TombstoneGrace:         7 * 24 * time.Hour,
		},
		Maintenance: MaintenanceConfig{
			CycleInterval: time.Hour,
			PhaseBudget:   30 * time.Second,
		},
		Overflow: OverflowConfig{
			Path: "./data/overflow.ndjson",
		},
		EmbedCache: EmbedCacheConfig{
			MaxBytes: 10 * 1024 * 1024,
			TTL:      time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig assembles configuration from defaults, an optional YAML file
// (path from MEMCORE_CONFIG_FILE), and environment variable overrides, then
// validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := DefaultConfig()

	if path := os.Getenv("MEMCORE_CONFIG_FILE"); path != "" {
		if err := loadYAMLOverlay(cfg, path); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAMLOverlay parses a YAML file into a generic map and decodes that
// map over cfg via mapstructure, so a partial YAML file only overrides the
// keys it sets.
func loadYAMLOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator-controlled env var
	if err != nil {
		return err
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing yaml: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "yaml",
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// loadFromEnv applies environment variable overrides, highest precedence.
func loadFromEnv(cfg *Config) {
	setStringFromEnv("MEMCORE_CONTROL_HOST", &cfg.Control.Host)
	setIntFromEnv("MEMCORE_CONTROL_PORT", &cfg.Control.Port)
	setDurationFromEnv("MEMCORE_CONTROL_SEARCH_DEADLINE", &cfg.Control.SearchDeadline)

	setIntFromEnv("MEMCORE_ROUTER_FAILURE_THRESHOLD", &cfg.Router.FailureThreshold)
	setIntFromEnv("MEMCORE_ROUTER_SUCCESS_THRESHOLD", &cfg.Router.SuccessThreshold)
	setDurationFromEnv("MEMCORE_ROUTER_OPEN_TIMEOUT", &cfg.Router.OpenTimeout)

	setStringFromEnv("MEMCORE_HOT_ADDR", &cfg.Hot.Addr)
	cfg.Hot.Password = getStringEnvWithDefault("MEMCORE_HOT_PASSWORD", cfg.Hot.Password)
	setIntFromEnv("MEMCORE_HOT_DB", &cfg.Hot.DB)
	setDurationFromEnv("MEMCORE_HOT_DEFAULT_TTL", &cfg.Hot.DefaultTTL)

	setStringFromEnv("MEMCORE_WARM_QDRANT_ADDR", &cfg.Warm.QdrantAddr)
	cfg.Warm.QdrantAPIKey = getStringEnvWithDefault("MEMCORE_WARM_QDRANT_API_KEY", cfg.Warm.QdrantAPIKey)
	setStringFromEnv("MEMCORE_WARM_QDRANT_COLLECTION", &cfg.Warm.QdrantCollection)
	setIntFromEnv("MEMCORE_WARM_EMBEDDING_DIM", &cfg.Warm.EmbeddingDim)

	cfg.Cold.DSN = getStringEnvWithDefault("MEMCORE_COLD_DSN", cfg.Cold.DSN)
	setIntFromEnv("MEMCORE_COLD_MAX_OPEN_CONNS", &cfg.Cold.MaxOpenConns)

	setDurationFromEnv("MEMCORE_MAINTENANCE_CYCLE_INTERVAL", &cfg.Maintenance.CycleInterval)
	setDurationFromEnv("MEMCORE_MAINTENANCE_PHASE_BUDGET", &cfg.Maintenance.PhaseBudget)

	setStringFromEnv("MEMCORE_OVERFLOW_PATH", &cfg.Overflow.Path)
	cfg.Overflow.EncryptionKey = getStringEnvWithDefault("MEMCORE_OVERFLOW_KEY", cfg.Overflow.EncryptionKey)

	setStringFromEnv("MEMCORE_LOG_LEVEL", &cfg.Logging.Level)
	setStringFromEnv("MEMCORE_LOG_FORMAT", &cfg.Logging.Format)
}

func getStringEnvWithDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func setStringFromEnv(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setIntFromEnv(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setDurationFromEnv(key string, target *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

// Validate checks cross-field invariants that defaults alone can't guarantee
// once environment/YAML overrides are applied.
func (c *Config) Validate() error {
	if err := c.validateControl(); err != nil {
		return err
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	if err := c.validatePlacement(); err != nil {
		return err
	}
	if err := c.validateWarm(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateControl() error {
	if c.Control.Port < 1 || c.Control.Port > 65535 {
		return fmt.Errorf("invalid control port: %d", c.Control.Port)
	}
	if c.Control.Host == "" {
		return errors.New("control host cannot be empty")
	}
	return nil
}

func (c *Config) validateScoring() error {
	w := c.Scoring.ImportanceWeights
	sum := w.Recency + w.Frequency + w.Salience + w.Relevance
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("importance weights must sum to 1.0, got %f", sum)
	}
	if c.Scoring.RecencyLambda <= 0 {
		return errors.New("recency lambda must be positive")
	}
	return nil
}

func (c *Config) validatePlacement() error {
	if c.Placement.MoveMaxAttempts < 1 {
		return errors.New("move max attempts must be at least 1")
	}
	if c.Placement.WarmToColdStrength < 0 || c.Placement.WarmToColdStrength > 1 {
		return errors.New("warm->cold strength threshold must be in [0,1]")
	}
	return nil
}

func (c *Config) validateWarm() error {
	if c.Warm.EmbeddingDim <= 0 {
		return errors.New("embedding dimension must be positive")
	}
	return nil
}
