package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the ConfSight server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Embedding EmbeddingConfig
	Analysis  AnalysisConfig
	Suggest   SuggestConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type EmbeddingConfig struct {
	Provider  string
	FastEmbed FastEmbedConfig
	Ollama    OllamaConfig
}

type FastEmbedConfig struct {
	Model    string
	CacheDir string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// AnalysisConfig holds the tunables for the batch clustering and pattern
// mining process. Per-request overrides in run requests take precedence.
type AnalysisConfig struct {
	Window          time.Duration
	Epsilon         float64
	MinSamples      int
	SignificanceMin float64
	SupportMin      int
	FloorEpsilon    float64
	ScoreCeiling    float64
	MaxValueLen     int
	LockTTL         time.Duration
	Cron            string
}

type SuggestConfig struct {
	MaxDistance      float64
	MultiMaxDistance float64
	MaxClusters      int
	MaxSuggestions   int
	CacheTTL         time.Duration
}

var validProviders = map[string]bool{
	"fastembed": true,
	"ollama":    true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CONFSIGHT_PORT", 8080),
			Env:  envString("CONFSIGHT_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Embedding: EmbeddingConfig{
			Provider: envString("EMBEDDING_PROVIDER", "fastembed"),
			FastEmbed: FastEmbedConfig{
				Model:    envString("EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
				CacheDir: envString("EMBEDDING_CACHE_DIR", "local_cache"),
			},
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "nomic-embed-text"),
				Timeout: envDuration("OLLAMA_TIMEOUT", 30*time.Second),
			},
		},
		Analysis: AnalysisConfig{
			Window:          envDuration("ANALYSIS_WINDOW", 24*time.Hour),
			Epsilon:         envFloat("ANALYSIS_EPSILON", 0.3),
			MinSamples:      envInt("ANALYSIS_MIN_SAMPLES", 2),
			SignificanceMin: envFloat("ANALYSIS_SIGNIFICANCE_MIN", 1.5),
			SupportMin:      envInt("ANALYSIS_SUPPORT_MIN", 1),
			FloorEpsilon:    envFloat("ANALYSIS_FLOOR_EPSILON", 0.01),
			ScoreCeiling:    envFloat("ANALYSIS_SCORE_CEILING", 100),
			MaxValueLen:     envInt("ANALYSIS_MAX_VALUE_LEN", 200),
			LockTTL:         envDuration("ANALYSIS_LOCK_TTL", 30*time.Minute),
			Cron:            envString("ANALYSIS_CRON", "0 2 * * *"),
		},
		Suggest: SuggestConfig{
			MaxDistance:      envFloat("SUGGEST_MAX_DISTANCE", 0.1),
			MultiMaxDistance: envFloat("SUGGEST_MULTI_MAX_DISTANCE", 0.2),
			MaxClusters:      envInt("SUGGEST_MAX_CLUSTERS", 2),
			MaxSuggestions:   envInt("SUGGEST_MAX_SUGGESTIONS", 3),
			CacheTTL:         envDuration("SUGGEST_CACHE_TTL", 5*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validProviders[c.Embedding.Provider] {
		return fmt.Errorf("EMBEDDING_PROVIDER must be one of fastembed, ollama; got %q", c.Embedding.Provider)
	}

	if c.Analysis.Epsilon <= 0 || c.Analysis.Epsilon > 1 {
		return fmt.Errorf("ANALYSIS_EPSILON must be in (0, 1]; got %g", c.Analysis.Epsilon)
	}
	if c.Analysis.MinSamples < 1 {
		return fmt.Errorf("ANALYSIS_MIN_SAMPLES must be at least 1; got %d", c.Analysis.MinSamples)
	}
	if c.Analysis.FloorEpsilon <= 0 {
		return fmt.Errorf("ANALYSIS_FLOOR_EPSILON must be positive; got %g", c.Analysis.FloorEpsilon)
	}

	if c.Suggest.MaxDistance < 0 || c.Suggest.MaxDistance > 1 {
		return fmt.Errorf("SUGGEST_MAX_DISTANCE must be in [0, 1]; got %g", c.Suggest.MaxDistance)
	}
	if c.Suggest.MultiMaxDistance < c.Suggest.MaxDistance {
		return fmt.Errorf("SUGGEST_MULTI_MAX_DISTANCE must be >= SUGGEST_MAX_DISTANCE")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
