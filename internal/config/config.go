package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	AuthMode           string        `mapstructure:"AUTH_MODE"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	UploadDir          string        `mapstructure:"UPLOAD_DIR"`
	AnthropicAPIKey    string        `mapstructure:"ANTHROPIC_API_KEY"`
	AIMode             string        `mapstructure:"AI_MODE"`
	AIModel            string        `mapstructure:"AI_MODEL"`
	JWTSecret          string        `mapstructure:"JWT_SECRET"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	WorkerPollInterval time.Duration `mapstructure:"WORKER_POLL_INTERVAL"`
	WorkerConcurrency  int           `mapstructure:"WORKER_CONCURRENCY"`
	SimulateMinLatency time.Duration `mapstructure:"SIMULATE_MIN_LATENCY"`
	SimulateMaxLatency time.Duration `mapstructure:"SIMULATE_MAX_LATENCY"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("AI_MODE", "") // auto-detect: "" -> live when API key set
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("WORKER_POLL_INTERVAL", "1s")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("SIMULATE_MIN_LATENCY", "2s")
	v.SetDefault("SIMULATE_MAX_LATENCY", "8s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("UPLOAD_DIR")
	v.BindEnv("ANTHROPIC_API_KEY")
	v.BindEnv("AI_MODE")
	v.BindEnv("AI_MODEL")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("WORKER_POLL_INTERVAL")
	v.BindEnv("WORKER_CONCURRENCY")
	v.BindEnv("SIMULATE_MIN_LATENCY")
	v.BindEnv("SIMULATE_MAX_LATENCY")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SimulateMaxLatency < cfg.SimulateMinLatency {
		return nil, fmt.Errorf("SIMULATE_MAX_LATENCY must be >= SIMULATE_MIN_LATENCY")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests are accepted.")
		log.Println("WARNING: Set ENV=production and configure JWT_SECRET for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise the mode is inferred:
//   - ENV=development → "development" (no auth required)
//   - Otherwise       → "jwt" (HS256 bearer tokens signed with JWT_SECRET)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// ResolvedAIMode returns the effective AI collaborator mode. If AI_MODE is
// explicitly set it is returned; otherwise "live" when an Anthropic API key
// is configured and "stub" when it is not.
func (c *Config) ResolvedAIMode() string {
	if c.AIMode != "" {
		return c.AIMode
	}
	if c.AnthropicAPIKey != "" {
		return "live"
	}
	return "stub"
}

// Validate checks that the configuration is safe to run. In jwt auth mode a
// signing secret is required so that bearer tokens can actually be verified.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}
	if mode == "jwt" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE is \"jwt\" (current ENV=%q). "+
			"Refusing to start without authentication configuration", c.Env)
	}
	if c.ResolvedAIMode() == "live" && c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_MODE is \"live\"")
	}
	return nil
}
