package config

import (
	"fmt"
	"os"
	"reviewlens/internal/dialogue"
	"reviewlens/internal/evidence"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the optional YAML overlay file
const EnvConfigPath = "REVIEWLENS_CONFIG"

type Config struct {
	MongoURI  string `yaml:"mongo_uri"`
	MongoDB   string `yaml:"mongo_db"`
	RedisAddr string `yaml:"redis_addr"`
	HTTPPort  string `yaml:"http_port"`
	LogMode   string `yaml:"log_mode"`

	SessionTTL  time.Duration `yaml:"session_ttl"`
	TaxonomyTTL time.Duration `yaml:"taxonomy_ttl"`

	// SessionIdleTTL drops untouched sessions from memory; they are
	// restored from Redis or Mongo on the next request
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`

	// ReviewLimit caps the corpus loaded for one session
	ReviewLimit int `yaml:"review_limit"`

	CORSOrigins []string `yaml:"cors_origins"`

	// secrets come from the environment only
	JWTSecret     string `yaml:"-"`
	AdminUsername string `yaml:"-"`
	AdminPassword string `yaml:"-"`

	AI       AIConfig         `yaml:"ai"`
	Dialogue dialogue.Policy  `yaml:"dialogue"`
	Evidence evidence.Options `yaml:"evidence"`
}

// Default returns the built-in configuration without reading the environment
func Default() *Config {
	return &Config{
		MongoURI:    "mongodb://localhost:27017",
		MongoDB:     "reviewlens",
		RedisAddr:   "localhost:6379",
		HTTPPort:    "8080",
		LogMode:     "production",
		SessionTTL:  24 * time.Hour,
		TaxonomyTTL: 10 * time.Minute,
		ReviewLimit: 5000,
		CORSOrigins: []string{"http://localhost:3000"},
		JWTSecret:   "dev-secret-change-me",
		AI:          DefaultAIConfig(),
		Dialogue:    dialogue.DefaultPolicy(),
		Evidence:    evidence.DefaultOptions(),

		SessionIdleTTL: 30 * time.Minute,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// REVIEWLENS_CONFIG (if any) and environment overrides, in that order.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(EnvConfigPath))
}

// LoadFile is Load with an explicit overlay path. An empty path or a missing
// file leaves the defaults in place.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.MongoURI = getEnv("MONGO_URI", c.MongoURI)
	c.MongoDB = getEnv("MONGO_DB", c.MongoDB)
	c.RedisAddr = strings.TrimPrefix(getEnv("REDIS_URI", c.RedisAddr), "redis://")
	c.HTTPPort = getEnv("PORT", c.HTTPPort)
	c.LogMode = getEnv("LOG_MODE", c.LogMode)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.AdminUsername = getEnv("ADMIN_USERNAME", c.AdminUsername)
	c.AdminPassword = getEnv("ADMIN_PASSWORD", c.AdminPassword)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SessionTTL = d
		}
	}
	if v := os.Getenv("SESSION_IDLE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SessionIdleTTL = d
		}
	}
	if v := os.Getenv("REVIEW_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ReviewLimit = n
		}
	}

	c.AI.APIKey = getEnv("GEMINI_API_KEY", c.AI.APIKey)
	c.AI.Model = getEnv("GEMINI_MODEL_SUMMARY", c.AI.Model)
	if v := os.Getenv("CONVERGENCE"); v != "" {
		c.Dialogue.Convergence = dialogue.ConvergenceMode(v)
	}
}

// DialoguePolicy is the session policy with the summary deadline taken
// from ai.timeout_ms
func (c *Config) DialoguePolicy() dialogue.Policy {
	p := c.Dialogue
	p.SummaryTimeout = c.AI.Timeout()
	return p
}

// IdleTTL is SessionIdleTTL capped at SessionTTL, so a session leaves
// memory no later than its cache entry expires
func (c *Config) IdleTTL() time.Duration {
	if c.SessionTTL > 0 && c.SessionIdleTTL > c.SessionTTL {
		return c.SessionTTL
	}
	return c.SessionIdleTTL
}

// Validate rejects values the dialogue engine cannot run with
func (c *Config) Validate() error {
	switch c.Dialogue.Convergence {
	case "", dialogue.ConvergeExplicit, dialogue.ConvergeAuto:
	default:
		return fmt.Errorf("invalid convergence mode %q", c.Dialogue.Convergence)
	}
	if c.Dialogue.JaccardThreshold < 0 || c.Dialogue.JaccardThreshold > 1 {
		return fmt.Errorf("jaccard threshold %v out of range [0,1]", c.Dialogue.JaccardThreshold)
	}
	if c.Dialogue.Locale != "" && !dialogue.ValidLocale(c.Dialogue.Locale) {
		return fmt.Errorf("unsupported locale %q", c.Dialogue.Locale)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must not be empty")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
