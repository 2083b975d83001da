package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ReopenPolicy controls what tier a reopened alert resumes escalation at.
type ReopenPolicy string

const (
	// ReopenReset restarts a reopened alert at tier 1 with a fresh timeout.
	ReopenReset ReopenPolicy = "reset"
	// ReopenResume keeps the tier the alert held when it was acknowledged.
	ReopenResume ReopenPolicy = "resume"
)

type Config struct {
	Port              string   `mapstructure:"PORT"`
	Env               string   `mapstructure:"ENV"`
	DatabaseURL       string   `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer        string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string   `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL       string   `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey    string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins       []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int      `mapstructure:"RATE_LIMIT_BURST"`
	ReopenPolicy      string   `mapstructure:"REOPEN_POLICY"`
	HandoverGraceMin  int      `mapstructure:"HANDOVER_GRACE_MIN"`
	OperatorQueueSize int      `mapstructure:"OPERATOR_QUEUE_SIZE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REOPEN_POLICY", string(ReopenReset))
	v.SetDefault("HANDOVER_GRACE_MIN", 30)
	v.SetDefault("OPERATOR_QUEUE_SIZE", 256)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("REOPEN_POLICY")
	v.BindEnv("HANDOVER_GRACE_MIN")
	v.BindEnv("OPERATOR_QUEUE_SIZE")

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

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// HandoverGrace returns the grace window a pending handover stays claimable.
func (c *Config) HandoverGrace() time.Duration {
	return time.Duration(c.HandoverGraceMin) * time.Minute
}

// Reopen returns the validated reopen policy.
func (c *Config) Reopen() ReopenPolicy {
	return ReopenPolicy(c.ReopenPolicy)
}

// Validate checks that the configuration is safe to run. Outside development
// either a JWKS-backed issuer or an explicit signing key must be configured
// so real JWT authentication is enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q; "+
				"refusing to start without authentication configuration", c.Env)
	}

	switch ReopenPolicy(c.ReopenPolicy) {
	case ReopenReset, ReopenResume:
	default:
		return fmt.Errorf("REOPEN_POLICY must be %q or %q, got %q", ReopenReset, ReopenResume, c.ReopenPolicy)
	}

	if c.HandoverGraceMin <= 0 {
		return fmt.Errorf("HANDOVER_GRACE_MIN must be positive, got %d", c.HandoverGraceMin)
	}
	if c.OperatorQueueSize <= 0 {
		return fmt.Errorf("OPERATOR_QUEUE_SIZE must be positive, got %d", c.OperatorQueueSize)
	}

	return nil
}
