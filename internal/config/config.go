// Package config loads the server configuration.
//
// LAYERING:
// Values are resolved in this order, each layer overriding the one before:
//
//  1. Defaults (Default())
//  2. A YAML file, if CONFIG_FILE points at one
//  3. Environment variables
//
// A ".env" file in the working directory is loaded into the process
// environment first (without overriding variables that are already set), so
// it behaves like the environment layer and may itself set CONFIG_FILE.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// MinJWTSecretLength mirrors auth.MinSecretLength. Config checks it up front
// so a bad secret fails at startup with a config error.
const MinJWTSecretLength = 16

// Config holds all server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	GitHub    GitHubConfig    `yaml:"github"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	BcryptCost int    `yaml:"bcrypt_cost"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// RedisConfig is optional. An empty Addr disables Redis and with it rate limiting.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GitHubConfig enables the GitHub OAuth routes when ClientID is set.
type GitHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		DB:   DBConfig{Path: "data/snippets.db"},
		Auth: AuthConfig{BcryptCost: 12},
		Log:  LogConfig{Level: "info", Format: "text"},
		RateLimit: RateLimitConfig{
			Requests: 10,
			Window:   time.Minute,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load builds the configuration from defaults, the optional YAML file,
// ".env" and the environment, then validates it.
func Load() (*Config, error) {
	return load(".env")
}

func load(dotenvPath string) (*Config, error) {
	// godotenv.Load never overrides variables that are already set.
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading %s: %w", dotenvPath, err)
	}

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// loadFile overlays a YAML file. Keys absent from the file keep their
// current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables that are set and non-empty.
func (c *Config) applyEnv() error {
	var errs []error

	envInt("PORT", &c.Server.Port, &errs)
	envString("DB_PATH", &c.DB.Path)
	envString("JWT_SECRET", &c.Auth.JWTSecret)
	envInt("BCRYPT_COST", &c.Auth.BcryptCost, &errs)
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)
	envString("REDIS_ADDR", &c.Redis.Addr)
	envString("REDIS_PASSWORD", &c.Redis.Password)
	envInt("REDIS_DB", &c.Redis.DB, &errs)
	envInt("RATE_LIMIT_REQUESTS", &c.RateLimit.Requests, &errs)
	envDuration("RATE_LIMIT_WINDOW", &c.RateLimit.Window, &errs)
	envBool("METRICS_ENABLED", &c.Metrics.Enabled, &errs)
	envString("GITHUB_CLIENT_ID", &c.GitHub.ClientID)
	envString("GITHUB_CLIENT_SECRET", &c.GitHub.ClientSecret)
	envString("GITHUB_CALLBACK_URL", &c.GitHub.CallbackURL)

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}

	if c.GitHub.ClientID != "" && c.GitHub.CallbackURL == "" {
		c.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Server.Port)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s value %q", key, v))
		return
	}
	*dst = n
}

func envBool(key string, dst *bool, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s value %q", key, v))
		return
	}
	*dst = b
}

func envDuration(key string, dst *time.Duration, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s value %q", key, v))
		return
	}
	*dst = d
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if c.DB.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}

	switch {
	case c.Auth.JWTSecret == "":
		errs = append(errs, errors.New("JWT secret is required (set JWT_SECRET)"))
	case len(c.Auth.JWTSecret) < MinJWTSecretLength:
		errs = append(errs, fmt.Errorf("JWT secret must be at least %d bytes", MinJWTSecretLength))
	}
	if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost) {
		errs = append(errs, fmt.Errorf("bcrypt cost %d outside [%d, %d]", c.Auth.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	if c.Redis.Addr != "" {
		if c.RateLimit.Requests <= 0 {
			errs = append(errs, fmt.Errorf("rate limit requests must be positive, got %d", c.RateLimit.Requests))
		}
		if c.RateLimit.Window <= 0 {
			errs = append(errs, fmt.Errorf("rate limit window must be positive, got %s", c.RateLimit.Window))
		}
	}

	if c.GitHub.ClientID != "" && c.GitHub.ClientSecret == "" {
		errs = append(errs, errors.New("GitHub client secret is required when a client ID is set"))
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", l.Level)
}

// NewLogger builds the slog logger described by the config.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	if strings.ToLower(l.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
