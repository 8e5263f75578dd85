// Package config builds the immutable runtime configuration from the
// environment. All tunables are read once at startup; the resulting
// Config is never mutated afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/peregrine/internal/domain"
)

// Advisor providers.
const (
	AdvisorProviderMock     = "mock"
	AdvisorProviderExternal = "external"
)

// Config holds the complete Peregrine configuration.
type Config struct {
	Server     ServerConfig
	Repository domain.RepositoryConfig
	Cache      domain.CacheConfig
	EventBus   domain.EventBusConfig
	Topics     Topics
	Engine     EngineConfig
	Advisor    AdvisorConfig
	Planner    PlannerConfig

	// BoostRulesPath points at an optional YAML file with extra scoring
	// expressions. Empty disables boosts.
	BoostRulesPath string

	// Debug enables debug-level logging.
	Debug bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
}

// Topics names the bus topics used by the pipeline.
type Topics struct {
	Transactions string
	Decisions    string
	Alerts       string
}

// EngineConfig holds the decision thresholds and feature windows.
// BlockThreshold must be strictly greater than ChallengeThreshold.
type EngineConfig struct {
	BlockThreshold     float64
	ChallengeThreshold float64
	VelocityWindow     time.Duration
}

// AdvisorConfig holds the risk advisor settings.
type AdvisorConfig struct {
	Enabled  bool
	Provider string // "mock" or "external"
	URL      string
	Timeout  time.Duration
}

// PlannerConfig holds the workflow planner settings. When enabled, each
// decision carries a reason describing the tool workflow a downstream
// orchestrator would run for it.
type PlannerConfig struct {
	Enabled bool
}

// Default returns the built-in configuration: SQLite store, in-process
// channel bus, local LRU cache, advisor disabled.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: domain.RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./peregrine.db",
		},
		Cache: domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     30 * time.Second,
		},
		EventBus: domain.EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Topics: Topics{
			Transactions: domain.TopicTransactions,
			Decisions:    domain.TopicDecisions,
			Alerts:       domain.TopicAlerts,
		},
		Engine: EngineConfig{
			BlockThreshold:     80,
			ChallengeThreshold: 55,
			VelocityWindow:     60 * time.Second,
		},
		Advisor: AdvisorConfig{
			Enabled:  false,
			Provider: AdvisorProviderMock,
			Timeout:  3 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional .env file and
// the process environment, then validates it.
func Load() (*Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := Default()

	cfg.Engine.BlockThreshold = envFloat("BLOCK_THRESHOLD", cfg.Engine.BlockThreshold)
	cfg.Engine.ChallengeThreshold = envFloat("CHALLENGE_THRESHOLD", cfg.Engine.ChallengeThreshold)
	if secs := envInt("VELOCITY_WINDOW_SEC", int(cfg.Engine.VelocityWindow/time.Second)); secs > 0 {
		cfg.Engine.VelocityWindow = time.Duration(secs) * time.Second
	}

	cfg.Advisor.Enabled = envBool("RISK_ADVISOR_ENABLED", cfg.Advisor.Enabled)
	cfg.Advisor.Provider = envString("RISK_ADVISOR_PROVIDER", cfg.Advisor.Provider)
	cfg.Advisor.URL = envString("RISK_ADVISOR_URL", cfg.Advisor.URL)
	if secs := envInt("RISK_ADVISOR_TIMEOUT_SEC", 0); secs > 0 {
		cfg.Advisor.Timeout = time.Duration(secs) * time.Second
	}

	cfg.Server.Host = envString("PEREGRINE_HOST", cfg.Server.Host)
	cfg.Server.Port = envInt("PEREGRINE_PORT", cfg.Server.Port)

	cfg.Repository.Driver = envString("PEREGRINE_DB_DRIVER", cfg.Repository.Driver)
	cfg.Repository.SQLitePath = envString("PEREGRINE_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = envString("PEREGRINE_PG_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = envInt("PEREGRINE_PG_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = envString("PEREGRINE_PG_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = envString("PEREGRINE_PG_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = envString("PEREGRINE_PG_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = envString("PEREGRINE_PG_SSLMODE", cfg.Repository.PostgresSSLMode)

	cfg.Cache.Type = envString("PEREGRINE_CACHE", cfg.Cache.Type)
	cfg.Cache.RedisAddr = envString("PEREGRINE_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = envString("PEREGRINE_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = envInt("PEREGRINE_REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.EnableTwoPhase = envBool("PEREGRINE_CACHE_TWO_PHASE", cfg.Cache.EnableTwoPhase)

	cfg.EventBus.Type = envString("PEREGRINE_BUS", cfg.EventBus.Type)
	cfg.EventBus.NATSUrl = envString("PEREGRINE_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = envString("PEREGRINE_NATS_TOKEN", cfg.EventBus.NATSToken)

	cfg.Topics.Transactions = envString("PEREGRINE_TOPIC_TRANSACTIONS", cfg.Topics.Transactions)
	cfg.Topics.Decisions = envString("PEREGRINE_TOPIC_DECISIONS", cfg.Topics.Decisions)
	cfg.Topics.Alerts = envString("PEREGRINE_TOPIC_ALERTS", cfg.Topics.Alerts)

	cfg.Planner.Enabled = envBool("WORKFLOW_PLANNER_ENABLED", cfg.Planner.Enabled)

	cfg.BoostRulesPath = envString("PEREGRINE_BOOST_RULES", cfg.BoostRulesPath)
	cfg.Debug = envBool("PEREGRINE_DEBUG", cfg.Debug)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants. A violation is fatal at
// startup; the engine refuses to run.
func (c *Config) Validate() error {
	if c.Engine.BlockThreshold <= c.Engine.ChallengeThreshold {
		return fmt.Errorf("%w: BLOCK_THRESHOLD (%.2f) must be greater than CHALLENGE_THRESHOLD (%.2f)",
			domain.ErrConfigInvalid, c.Engine.BlockThreshold, c.Engine.ChallengeThreshold)
	}
	if c.Engine.VelocityWindow <= 0 {
		return fmt.Errorf("%w: VELOCITY_WINDOW_SEC must be positive", domain.ErrConfigInvalid)
	}
	switch c.Advisor.Provider {
	case AdvisorProviderMock, AdvisorProviderExternal:
	default:
		return fmt.Errorf("%w: unknown RISK_ADVISOR_PROVIDER %q", domain.ErrConfigInvalid, c.Advisor.Provider)
	}
	if c.Advisor.Enabled && c.Advisor.Provider == AdvisorProviderExternal && c.Advisor.URL == "" {
		return fmt.Errorf("%w: RISK_ADVISOR_URL is required for the external provider", domain.ErrConfigInvalid)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "1", "true", "TRUE", "True", "yes", "YES":
			return true
		case "0", "false", "FALSE", "False", "no", "NO":
			return false
		}
	}
	return def
}
