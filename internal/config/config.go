// Package config provides configuration for the agent server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Agent modes.
const (
	AgentModeMock   = "MOCK"
	AgentModeLLM    = "LLM"
	AgentModeRemote = "REMOTE"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`

	// Storage
	StoreDriver string        `yaml:"store_driver"`
	DatabaseURL string        `yaml:"database_url"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	RedisTTL    time.Duration `yaml:"redis_ttl"`

	// Agent runtime
	AgentMode      string        `yaml:"agent_mode"`
	RemoteAgentURL string        `yaml:"remote_agent_url"`
	LLMBaseURL     string        `yaml:"llm_base_url"`
	LLMAPIKey      string        `yaml:"llm_api_key"`
	LLMModel       string        `yaml:"llm_model"`
	LLMTimeout     time.Duration `yaml:"llm_timeout"`
	MaxToolRounds  int           `yaml:"max_tool_rounds"`
	PolicyFile     string        `yaml:"policy_file"`

	// Sessions
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	SessionQueueSize  int           `yaml:"session_queue_size"`
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:          8000,
		StoreDriver:       StoreSQLite,
		DatabaseURL:       "file:messages.db?cache=shared&mode=rwc",
		RedisAddr:         "localhost:6379",
		RedisPrefix:       "aguitest:message:",
		AgentMode:         AgentModeMock,
		LLMBaseURL:        "https://api.openai.com/v1",
		LLMModel:          "gpt-4o-mini",
		LLMTimeout:        120 * time.Second,
		MaxToolRounds:     8,
		KeepaliveInterval: 60 * time.Second,
		SessionQueueSize:  256,
		MaxConcurrentRuns: 64,
	}
}

// Load loads configuration: a .env file if present, then the YAML file named
// by CONFIG_FILE, then environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.StoreDriver = getEnv("STORE_DRIVER", c.StoreDriver)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPrefix = getEnv("REDIS_PREFIX", c.RedisPrefix)
	c.RedisTTL = getEnvDuration("REDIS_TTL_MS", c.RedisTTL)
	c.AgentMode = getEnv("AGENT_MODE", c.AgentMode)
	c.RemoteAgentURL = getEnv("REMOTE_AGENT_URL", c.RemoteAgentURL)
	c.LLMBaseURL = getEnv("LLM_BASE_URL", c.LLMBaseURL)
	c.LLMAPIKey = getEnv("LLM_API_KEY", c.LLMAPIKey)
	c.LLMModel = getEnv("LLM_MODEL", c.LLMModel)
	c.LLMTimeout = getEnvDuration("LLM_TIMEOUT_MS", c.LLMTimeout)
	c.MaxToolRounds = getEnvInt("MAX_TOOL_ROUNDS", c.MaxToolRounds)
	c.PolicyFile = getEnv("POLICY_FILE", c.PolicyFile)
	c.KeepaliveInterval = getEnvDuration("KEEPALIVE_INTERVAL_MS", c.KeepaliveInterval)
	c.SessionQueueSize = getEnvInt("SESSION_QUEUE_SIZE", c.SessionQueueSize)
	c.MaxConcurrentRuns = getEnvInt("MAX_CONCURRENT_RUNS", c.MaxConcurrentRuns)
}

// Validate checks the settings that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.AgentMode {
	case AgentModeMock, AgentModeLLM:
	case AgentModeRemote:
		if c.RemoteAgentURL == "" {
			return errors.New("REMOTE_AGENT_URL is required when AGENT_MODE=REMOTE")
		}
	default:
		return fmt.Errorf("unknown agent mode %q", c.AgentMode)
	}
	switch c.StoreDriver {
	case StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.KeepaliveInterval <= 0 {
		return errors.New("keepalive interval must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
