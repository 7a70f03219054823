package config

import (
	"fmt"
	"math"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents application configuration
type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	ClickHouse  ClickHouseConfig
	Embeddings  EmbeddingsConfig
	Regime      RegimeConfig
	Retrieval   RetrievalConfig
	Recommend   RecommendConfig
	Learning    LearningConfig
	Calibration CalibrationConfig
	MarketFeed  MarketFeedConfig
	Outcomes    OutcomeFeedConfig
	Telegram    TelegramConfig
	Logging     LoggingConfig
	Server      ServerConfig
}

// DatabaseConfig represents Postgres connection parameters
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"advisor"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// RedisConfig represents Redis connection for advisory locks
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" required:"false"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// ClickHouseConfig represents the optional metrics sink
type ClickHouseConfig struct {
	Enabled bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	DSN     string `envconfig:"CLICKHOUSE_DSN" default:"clickhouse://localhost:9000/advisor"`
}

// EmbeddingsConfig represents the embedding provider
type EmbeddingsConfig struct {
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY" required:"false"`
	Model        string `envconfig:"EMBEDDINGS_MODEL" default:"text-embedding-3-small"`
	Dimensions   int    `envconfig:"EMBEDDINGS_DIMENSIONS" default:"1536"`
}

// RegimeConfig holds the fixed classification cutoffs
type RegimeConfig struct {
	VolLowMax    float64 `envconfig:"REGIME_VOL_LOW_MAX" default:"15.0"`
	VolNormalMax float64 `envconfig:"REGIME_VOL_NORMAL_MAX" default:"25.0"`
	VolHighMax   float64 `envconfig:"REGIME_VOL_HIGH_MAX" default:"35.0"`
	TrendBullMin float64 `envconfig:"REGIME_TREND_BULL_MIN" default:"0.5"`
	TrendBearMax float64 `envconfig:"REGIME_TREND_BEAR_MAX" default:"-0.5"`
}

// RetrievalConfig holds the hybrid retriever parameters.
// The five rerank weights must sum to 1.0; Validate enforces this at load,
// before any query executes.
type RetrievalConfig struct {
	SemanticWeight      float64       `envconfig:"RETRIEVAL_SEMANTIC_WEIGHT" default:"0.4"`
	RecencyWeight       float64       `envconfig:"RETRIEVAL_RECENCY_WEIGHT" default:"0.2"`
	SuccessWeight       float64       `envconfig:"RETRIEVAL_SUCCESS_WEIGHT" default:"0.2"`
	RegimeWeight        float64       `envconfig:"RETRIEVAL_REGIME_WEIGHT" default:"0.1"`
	PreferenceWeight    float64       `envconfig:"RETRIEVAL_PREFERENCE_WEIGHT" default:"0.1"`
	HalfLifeDays        float64       `envconfig:"RETRIEVAL_HALF_LIFE_DAYS" default:"90"`
	RegimePartialCredit float64       `envconfig:"RETRIEVAL_REGIME_PARTIAL_CREDIT" default:"0.3"`
	OverSampleFactor    int           `envconfig:"RETRIEVAL_OVERSAMPLE_FACTOR" default:"3"`
	MaxScanRows         int           `envconfig:"RETRIEVAL_MAX_SCAN_ROWS" default:"1000"`
	QueryTimeout        time.Duration `envconfig:"RETRIEVAL_QUERY_TIMEOUT" default:"5s"`
	RetryBackoff        time.Duration `envconfig:"RETRIEVAL_RETRY_BACKOFF" default:"200ms"`
	DefaultPreference   float64       `envconfig:"RETRIEVAL_DEFAULT_PREFERENCE" default:"0.5"`
}

// RecommendConfig holds the decision thresholds of the generator
type RecommendConfig struct {
	TakeThreshold    float64 `envconfig:"RECOMMEND_TAKE_THRESHOLD" default:"0.25"`
	PassThreshold    float64 `envconfig:"RECOMMEND_PASS_THRESHOLD" default:"-0.25"`
	TopEvidenceLines int     `envconfig:"RECOMMEND_TOP_EVIDENCE_LINES" default:"3"`
	EvidenceK        int     `envconfig:"RECOMMEND_EVIDENCE_K" default:"10"`
}

// LearningConfig holds learning cycle parameters
type LearningConfig struct {
	Interval            time.Duration `envconfig:"LEARNING_INTERVAL" default:"30m"`
	BatchSize           int           `envconfig:"LEARNING_BATCH_SIZE" default:"100"`
	InsightPnLThreshold float64       `envconfig:"LEARNING_INSIGHT_PNL_THRESHOLD" default:"250.0"`
	RetentionDays       int           `envconfig:"LEARNING_RETENTION_DAYS" default:"365"`
	LockTTL             time.Duration `envconfig:"LEARNING_LOCK_TTL" default:"5m"`
}

// CalibrationConfig holds calibration analyzer parameters
type CalibrationConfig struct {
	Interval       time.Duration `envconfig:"CALIBRATION_INTERVAL" default:"24h"`
	BandBounds     []float64     `envconfig:"CALIBRATION_BAND_BOUNDS" default:"0,50,70,85,100"`
	MinSampleCount int           `envconfig:"CALIBRATION_MIN_SAMPLES" default:"20"`
	LockTTL        time.Duration `envconfig:"CALIBRATION_LOCK_TTL" default:"5m"`
}

// MarketFeedConfig represents the market snapshot feed consumer
type MarketFeedConfig struct {
	Enabled        bool          `envconfig:"MARKET_FEED_ENABLED" default:"false"`
	URL            string        `envconfig:"MARKET_FEED_URL" required:"false"`
	ReconnectDelay time.Duration `envconfig:"MARKET_FEED_RECONNECT_DELAY" default:"5s"`
	TrendSMAPeriod int           `envconfig:"MARKET_FEED_TREND_SMA_PERIOD" default:"20"`
}

// OutcomeFeedConfig represents the closed-trade outcome poller
type OutcomeFeedConfig struct {
	Enabled      bool          `envconfig:"OUTCOME_FEED_ENABLED" default:"false"`
	Exchange     string        `envconfig:"OUTCOME_FEED_EXCHANGE" default:"binance"`
	APIKey       string        `envconfig:"OUTCOME_FEED_API_KEY" required:"false"`
	Secret       string        `envconfig:"OUTCOME_FEED_SECRET" required:"false"`
	Symbols      []string      `envconfig:"OUTCOME_FEED_SYMBOLS" default:"BTC/USDT"`
	PollInterval time.Duration `envconfig:"OUTCOME_FEED_POLL_INTERVAL" default:"5m"`
}

// TelegramConfig represents the optional cycle report notifier
type TelegramConfig struct {
	BotToken       string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID         int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
	AlertOnCycles  bool   `envconfig:"TELEGRAM_ALERT_ON_CYCLES" default:"true"`
	AlertOnDrift   bool   `envconfig:"TELEGRAM_ALERT_ON_DRIFT" default:"true"`
	DriftThreshold float64 `envconfig:"TELEGRAM_DRIFT_THRESHOLD" default:"10.0"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" default:""`
}

// ServerConfig represents the health/introspection HTTP server
type ServerConfig struct {
	HealthPort string `envconfig:"HEALTH_PORT" default:"8080"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if err := c.Retrieval.Validate(); err != nil {
		return err
	}
	if err := c.Calibration.Validate(); err != nil {
		return err
	}

	if c.Regime.VolLowMax >= c.Regime.VolNormalMax || c.Regime.VolNormalMax >= c.Regime.VolHighMax {
		return fmt.Errorf("regime volatility cutoffs must be strictly increasing")
	}
	if c.Regime.TrendBearMax >= c.Regime.TrendBullMin {
		return fmt.Errorf("regime trend cutoffs must satisfy bear_max < bull_min")
	}

	if c.Recommend.PassThreshold >= c.Recommend.TakeThreshold {
		return fmt.Errorf("pass_threshold must be below take_threshold")
	}
	if c.Recommend.EvidenceK < 1 {
		return fmt.Errorf("evidence_k must be at least 1")
	}

	if c.Learning.BatchSize < 1 {
		return fmt.Errorf("learning batch_size must be at least 1")
	}

	if c.Embeddings.Dimensions < 1 {
		return fmt.Errorf("embeddings dimensions must be positive")
	}

	return nil
}

// Validate checks retriever parameters. A weight set summing to 0.9 or 1.1
// is rejected here, never at query time.
func (c *RetrievalConfig) Validate() error {
	sum := c.SemanticWeight + c.RecencyWeight + c.SuccessWeight + c.RegimeWeight + c.PreferenceWeight
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("rerank weights must sum to 1.0, got %.4f", sum)
	}

	for name, w := range map[string]float64{
		"semantic":   c.SemanticWeight,
		"recency":    c.RecencyWeight,
		"success":    c.SuccessWeight,
		"regime":     c.RegimeWeight,
		"preference": c.PreferenceWeight,
	} {
		if w < 0 {
			return fmt.Errorf("rerank weight %s must be non-negative, got %.4f", name, w)
		}
	}

	if c.HalfLifeDays <= 0 {
		return fmt.Errorf("half_life_days must be positive, got %.2f", c.HalfLifeDays)
	}
	if c.RegimePartialCredit < 0 || c.RegimePartialCredit > 1 {
		return fmt.Errorf("regime_partial_credit must be in [0,1], got %.2f", c.RegimePartialCredit)
	}
	if c.OverSampleFactor < 1 {
		return fmt.Errorf("oversample_factor must be at least 1, got %d", c.OverSampleFactor)
	}
	if c.DefaultPreference < 0 || c.DefaultPreference > 1 {
		return fmt.Errorf("default_preference must be in [0,1], got %.2f", c.DefaultPreference)
	}

	return nil
}

// Validate checks calibration band bounds: ascending, starting at 0,
// ending at 100
func (c *CalibrationConfig) Validate() error {
	if len(c.BandBounds) < 2 {
		return fmt.Errorf("calibration needs at least two band bounds")
	}
	if c.BandBounds[0] != 0 || c.BandBounds[len(c.BandBounds)-1] != 100 {
		return fmt.Errorf("calibration band bounds must start at 0 and end at 100")
	}
	for i := 1; i < len(c.BandBounds); i++ {
		if c.BandBounds[i] <= c.BandBounds[i-1] {
			return fmt.Errorf("calibration band bounds must be strictly increasing")
		}
	}
	if c.MinSampleCount < 1 {
		return fmt.Errorf("calibration min_samples must be at least 1")
	}
	return nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
