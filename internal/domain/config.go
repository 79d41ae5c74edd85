package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidConfig indicates a scoring or fraud policy that cannot be
// used: weights not summing to 1.0, or thresholds outside [0,1].
// Validation fails fast at configuration load, before any analysis.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Scoring policy
	Scoring ScoringConfig `json:"scoring"`
	Fraud   FraudConfig   `json:"fraud"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// WeightProfile is the versioned weight assignment the composite
// scorer receives. Profiles are configuration artifacts, not inline
// logic: reweighting (e.g. the 60/40 to 40/30/30 evolution) means a
// new profile version, never a change to the fusion algorithm, and
// verdicts record the version they were computed under.
type WeightProfile struct {
	Version string `json:"version"`

	// Nominal group weights; must sum to 1.0.
	Groups map[SignalGroup]float64 `json:"groups"`

	// Per-method weights within the behavioral group; must sum to 1.0.
	Methods map[string]float64 `json:"methods"`
}

// RiskThresholds are the lower bounds of the medium, high, and
// critical buckets. Confidence below Medium is low risk. Intervals are
// half-open on the low side; 1.0 falls in critical.
type RiskThresholds struct {
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// ScoringConfig holds the composite scorer policy.
type ScoringConfig struct {
	Profile WeightProfile `json:"profile"`

	// BotThreshold classifies a session as bot when confidence is
	// strictly above it. Confidence exactly at the threshold stays
	// human.
	BotThreshold float64 `json:"botThreshold"`

	Risk RiskThresholds `json:"risk"`
}

// FraudWeights is the fixed weight table for the five fraud
// sub-scores; must sum to 1.0. Undefined sub-scores have their weight
// redistributed proportionally at combination time.
type FraudWeights struct {
	IP          float64 `json:"ip"`
	Fingerprint float64 `json:"fingerprint"`
	Duplicate   float64 `json:"duplicate"`
	Geolocation float64 `json:"geolocation"`
	Velocity    float64 `json:"velocity"`
}

// FraudConfig holds the fraud indicator calculator policy.
type FraudConfig struct {
	Weights FraudWeights `json:"weights"`

	// DuplicateThreshold marks the session as duplicate when the
	// overall fraud score reaches it.
	DuplicateThreshold float64 `json:"duplicateThreshold"`

	// SimilarityThreshold is the pairwise text similarity above which
	// two responses count as duplicates of each other.
	SimilarityThreshold float64 `json:"similarityThreshold"`

	// FlagThreshold is the per-sub-score level above which a flag
	// reason is recorded.
	FlagThreshold float64 `json:"flagThreshold"`

	// SaturationCount is the prior-usage count at which IP and
	// fingerprint reuse risk saturates to 1.0.
	SaturationCount int `json:"saturationCount"`

	// RateThreshold is the responses-per-hour rate above which
	// velocity risk starts rising.
	RateThreshold float64 `json:"rateThreshold"`

	// LookbackWindow bounds history queries. Zero means unbounded.
	LookbackWindow time.Duration `json:"lookbackWindow"`

	// ConcurrencyWindow bounds the near-concurrent session scan used
	// by the velocity check.
	ConcurrencyWindow time.Duration `json:"concurrencyWindow"`
}

const weightSumTolerance = 1e-9

// Validate checks the scoring policy. Returns ErrInvalidConfig on the
// first violation found.
func (c *ScoringConfig) Validate() error {
	var sum float64
	for group, w := range c.Profile.Groups {
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: group weight %s=%v out of [0,1]", ErrInvalidConfig, group, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("%w: group weights sum to %v, want 1.0", ErrInvalidConfig, sum)
	}

	sum = 0
	for method, w := range c.Profile.Methods {
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: method weight %s=%v out of [0,1]", ErrInvalidConfig, method, w)
		}
		sum += w
	}
	if len(c.Profile.Methods) > 0 && math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("%w: method weights sum to %v, want 1.0", ErrInvalidConfig, sum)
	}

	if c.BotThreshold < 0 || c.BotThreshold > 1 {
		return fmt.Errorf("%w: bot threshold %v out of [0,1]", ErrInvalidConfig, c.BotThreshold)
	}

	r := c.Risk
	if r.Medium < 0 || r.Critical > 1 || !(r.Medium < r.High && r.High < r.Critical) {
		return fmt.Errorf("%w: risk thresholds %v/%v/%v must be ascending within [0,1]",
			ErrInvalidConfig, r.Medium, r.High, r.Critical)
	}

	return nil
}

// Validate checks the fraud policy. Returns ErrInvalidConfig on the
// first violation found.
func (c *FraudConfig) Validate() error {
	w := c.Weights
	for _, v := range []float64{w.IP, w.Fingerprint, w.Duplicate, w.Geolocation, w.Velocity} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: fraud weight %v out of [0,1]", ErrInvalidConfig, v)
		}
	}
	sum := w.IP + w.Fingerprint + w.Duplicate + w.Geolocation + w.Velocity
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("%w: fraud weights sum to %v, want 1.0", ErrInvalidConfig, sum)
	}

	for name, v := range map[string]float64{
		"duplicateThreshold":  c.DuplicateThreshold,
		"similarityThreshold": c.SimilarityThreshold,
		"flagThreshold":       c.FlagThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s %v out of [0,1]", ErrInvalidConfig, name, v)
		}
	}

	if c.SaturationCount <= 0 {
		return fmt.Errorf("%w: saturation count must be positive", ErrInvalidConfig)
	}
	if c.RateThreshold <= 0 {
		return fmt.Errorf("%w: rate threshold must be positive", ErrInvalidConfig)
	}

	return nil
}

// DefaultWeightProfile returns the documented 40/30/30 group weighting
// with the standard behavioral method split.
func DefaultWeightProfile() WeightProfile {
	return WeightProfile{
		Version: "2",
		Groups: map[SignalGroup]float64{
			GroupBehavioral:  0.40,
			GroupTextQuality: 0.30,
			GroupFraud:       0.30,
		},
		Methods: map[string]float64{
			MethodKeystroke: 0.25,
			MethodMouse:     0.25,
			MethodTiming:    0.20,
			MethodDevice:    0.15,
			MethodNetwork:   0.15,
		},
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			Profile:      DefaultWeightProfile(),
			BotThreshold: 0.7,
			Risk: RiskThresholds{
				Medium:   0.5,
				High:     0.7,
				Critical: 0.9,
			},
		},
		Fraud: FraudConfig{
			Weights: FraudWeights{
				IP:          0.25,
				Fingerprint: 0.25,
				Duplicate:   0.20,
				Geolocation: 0.15,
				Velocity:    0.15,
			},
			DuplicateThreshold:  0.7,
			SimilarityThreshold: 0.85,
			FlagThreshold:       0.6,
			SaturationCount:     5,
			RateThreshold:       60,
			LookbackWindow:      30 * 24 * time.Hour,
			ConcurrencyWindow:   time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// Validate checks the full configuration.
func (c *Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return err
	}
	return c.Fraud.Validate()
}
