package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/claude/injuryrisk/internal/normalize"
	"github.com/claude/injuryrisk/internal/thresholds"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Redis     RedisConfig     `yaml:"redis"`
	Athlete   AthleteConfig   `yaml:"athlete"`
	Scoring   ScoringConfig   `yaml:"scoring"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// RedisConfig enables the shared baseline cache when Addr is set.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// AthleteConfig holds the heart-rate anchors used for zones and TRIMP.
type AthleteConfig struct {
	MaxHR     float64 `yaml:"max_hr"`
	RestingHR float64 `yaml:"resting_hr"`
}

// ScoringConfig selects the threshold set. File, when set, is a YAML file
// overlaying the defaults of its own profile and takes precedence over Profile.
type ScoringConfig struct {
	Profile string `yaml:"profile"`
	File    string `yaml:"file"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// TTL returns the cache entry lifetime, defaulting to 24h.
func (r RedisConfig) TTL() time.Duration {
	if r.TTLSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(r.TTLSeconds) * time.Second
}

// Athlete returns the normalizer anchors, filling unset values with defaults.
func (a AthleteConfig) Athlete() normalize.Athlete {
	out := normalize.DefaultAthlete()
	if a.MaxHR > 0 {
		out.MaxHR = a.MaxHR
	}
	if a.RestingHR > 0 {
		out.RestingHR = a.RestingHR
	}
	return out
}

// Thresholds resolves the scoring configuration.
func (s ScoringConfig) Thresholds() (thresholds.Config, error) {
	if s.File != "" {
		return thresholds.LoadFile(s.File)
	}
	return thresholds.ForProfile(s.Profile)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix INJURYRISK_ and underscore-separated paths:
//
//	INJURYRISK_SERVER_HOST, INJURYRISK_SERVER_PORT,
//	INJURYRISK_DB_HOST, INJURYRISK_DB_PORT, INJURYRISK_DB_NAME,
//	INJURYRISK_DB_USER, INJURYRISK_DB_PASSWORD, INJURYRISK_DB_SSLMODE,
//	INJURYRISK_AUTH_API_KEY, INJURYRISK_TAILSCALE_ENABLED,
//	INJURYRISK_REDIS_ADDR, INJURYRISK_REDIS_PASSWORD, INJURYRISK_REDIS_DB,
//	INJURYRISK_SCORING_PROFILE, INJURYRISK_SCORING_FILE
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INJURYRISK_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("INJURYRISK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("INJURYRISK_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("INJURYRISK_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("INJURYRISK_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("INJURYRISK_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("INJURYRISK_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("INJURYRISK_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("INJURYRISK_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("INJURYRISK_TAILSCALE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = enabled
		}
	}
	if v := os.Getenv("INJURYRISK_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("INJURYRISK_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("INJURYRISK_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("INJURYRISK_SCORING_PROFILE"); v != "" {
		cfg.Scoring.Profile = v
	}
	if v := os.Getenv("INJURYRISK_SCORING_FILE"); v != "" {
		cfg.Scoring.File = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0")
	}
	if a := c.Athlete.Athlete(); a.MaxHR <= a.RestingHR {
		return fmt.Errorf("athlete.max_hr (%.0f) must exceed athlete.resting_hr (%.0f)", a.MaxHR, a.RestingHR)
	}
	if c.Scoring.File == "" {
		if _, err := thresholds.ForProfile(c.Scoring.Profile); err != nil {
			return fmt.Errorf("scoring.profile: %w", err)
		}
	}
	return nil
}
