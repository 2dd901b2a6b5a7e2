package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/now-is/chicommons-maps/internal/db"
	"github.com/now-is/chicommons-maps/internal/geocode"
	"github.com/now-is/chicommons-maps/internal/moderation"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override, e.g. DIRECTORY_DATABASE_HOST.
const EnvPrefix = "DIRECTORY"

// HTTPConfig holds API server settings
type HTTPConfig struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// GeocoderConfig holds address enrichment settings
type GeocoderConfig struct {
	Enabled bool
	geocode.Config
}

// ReviewConfig holds moderation policies
type ReviewConfig struct {
	RejectedDrafts       string
	RejectStaleProposals bool
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string
	Development bool
}

// Config is the complete service configuration
type Config struct {
	Database db.Config
	HTTP     HTTPConfig
	Geocoder GeocoderConfig
	Review   ReviewConfig
	Log      LogConfig
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		HTTP: HTTPConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
		},
		Geocoder: GeocoderConfig{
			Enabled: true,
			Config:  geocode.DefaultConfig(),
		},
		Review: ReviewConfig{
			RejectedDrafts:       string(moderation.RetainRejectedDrafts),
			RejectStaleProposals: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

var envKeys = []string{
	"database.host",
	"database.port",
	"database.user",
	"database.password",
	"database.dbname",
	"database.sslmode",
	"database.max_conns",
	"database.min_conns",
	"http.addr",
	"http.allowed_origins",
	"http.read_timeout",
	"http.write_timeout",
	"geocoder.enabled",
	"geocoder.base_url",
	"geocoder.user_agent",
	"geocoder.timeout",
	"geocoder.requests_per_second",
	"geocoder.max_retries",
	"geocoder.cache_size",
	"geocoder.country_codes",
	"review.rejected_drafts",
	"review.reject_stale_proposals",
	"log.level",
	"log.development",
}

// Load reads config.yaml from configPath (optional) and applies environment
// overrides on top of Default.
func Load(configPath string, logger *zap.Logger) (Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		logger.Info("no config.yaml found, using defaults and env vars", zap.String("path", configPath))
	} else {
		logger.Info("loaded config", zap.String("file", v.ConfigFileUsed()))
	}

	// Database
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt32("database.max_conns")
	}
	if v.IsSet("database.min_conns") {
		cfg.Database.MinConns = v.GetInt32("database.min_conns")
	}

	// HTTP
	if v.IsSet("http.addr") {
		cfg.HTTP.Addr = v.GetString("http.addr")
	}
	if v.IsSet("http.allowed_origins") {
		cfg.HTTP.AllowedOrigins = splitList(v.GetStringSlice("http.allowed_origins"))
	}
	if v.IsSet("http.read_timeout") {
		cfg.HTTP.ReadTimeout = v.GetDuration("http.read_timeout")
	}
	if v.IsSet("http.write_timeout") {
		cfg.HTTP.WriteTimeout = v.GetDuration("http.write_timeout")
	}

	// Geocoder
	if v.IsSet("geocoder.enabled") {
		cfg.Geocoder.Enabled = v.GetBool("geocoder.enabled")
	}
	if v.IsSet("geocoder.base_url") {
		cfg.Geocoder.BaseURL = v.GetString("geocoder.base_url")
	}
	if v.IsSet("geocoder.user_agent") {
		cfg.Geocoder.UserAgent = v.GetString("geocoder.user_agent")
	}
	if v.IsSet("geocoder.timeout") {
		cfg.Geocoder.Timeout = v.GetDuration("geocoder.timeout")
	}
	if v.IsSet("geocoder.requests_per_second") {
		cfg.Geocoder.RequestsPerSecond = v.GetFloat64("geocoder.requests_per_second")
	}
	if v.IsSet("geocoder.max_retries") {
		cfg.Geocoder.MaxRetries = v.GetInt("geocoder.max_retries")
	}
	if v.IsSet("geocoder.cache_size") {
		cfg.Geocoder.CacheSize = v.GetInt("geocoder.cache_size")
	}
	if v.IsSet("geocoder.country_codes") {
		cfg.Geocoder.CountryCodes = v.GetString("geocoder.country_codes")
	}

	// Review
	if v.IsSet("review.rejected_drafts") {
		cfg.Review.RejectedDrafts = v.GetString("review.rejected_drafts")
	}
	if v.IsSet("review.reject_stale_proposals") {
		cfg.Review.RejectStaleProposals = v.GetBool("review.reject_stale_proposals")
	}

	// Log
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.development") {
		cfg.Log.Development = v.GetBool("log.development")
	}

	if _, err := cfg.ModerationOptions(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ModerationOptions converts the review and geocoder sections into engine options
func (c Config) ModerationOptions() (moderation.Options, error) {
	policy, err := moderation.ParseRejectedDraftPolicy(c.Review.RejectedDrafts)
	if err != nil {
		return moderation.Options{}, fmt.Errorf("review.rejected_drafts: %w", err)
	}
	opts := moderation.DefaultOptions()
	opts.RejectedDrafts = policy
	opts.RejectStaleProposals = c.Review.RejectStaleProposals
	if c.Geocoder.Timeout > 0 {
		opts.GeocodeTimeout = c.Geocoder.Timeout
	}
	return opts, nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	out := []string{}
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
