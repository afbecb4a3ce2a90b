// Package config loads pulse configuration from TOML, the credentials file
// and PULSE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"

	"github.com/vinayprograms/pulse/breaker"
	"github.com/vinayprograms/pulse/credentials"
	perrors "github.com/vinayprograms/pulse/errors"
	"github.com/vinayprograms/pulse/llm"
	"github.com/vinayprograms/pulse/situation"
)

// Run modes.
const (
	ModeOneShot = "one-shot"
	ModeDaemon  = "daemon"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
	StoreNATS   = "nats"
)

// Config is the full pulse configuration.
type Config struct {
	LogLevel string `toml:"log_level"`

	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Decision  DecisionConfig  `toml:"decision"`
	LLM       llm.Config      `toml:"llm"`
	Breaker   BreakerConfig   `toml:"breaker"`
	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Database  DatabaseConfig  `toml:"database"`
}

// HeartbeatConfig controls the engine loop.
type HeartbeatConfig struct {
	Enabled         bool   `toml:"enabled"`
	Mode            string `toml:"mode"`
	IntervalMinutes int    `toml:"interval_minutes"`

	// Schedule is a standard five-field cron expression. When set it
	// replaces the fixed interval in daemon mode.
	Schedule string `toml:"schedule"`

	QuietHoursStart int    `toml:"quiet_hours_start"`
	QuietHoursEnd   int    `toml:"quiet_hours_end"`
	Timezone        string `toml:"timezone"`

	CheckTimeout time.Duration `toml:"check_timeout"`

	// CycleLock takes a state-store lock per cycle so redundant instances
	// skip instead of running twice.
	CycleLock bool          `toml:"cycle_lock"`
	LockTTL   time.Duration `toml:"lock_ttl"`
}

// DecisionConfig controls the LLM decider.
type DecisionConfig struct {
	// Enabled false skips the decider and always uses the high-priority
	// fallback selection.
	Enabled bool          `toml:"enabled"`
	Timeout time.Duration `toml:"timeout"`

	// RatePerHour caps decider calls. 0 means unlimited.
	RatePerHour int `toml:"rate_per_hour"`
}

// BreakerConfig mirrors breaker.Config in TOML form.
type BreakerConfig struct {
	Threshold     int64         `toml:"threshold"`
	FailureWindow time.Duration `toml:"failure_window"`
	Cooldown      time.Duration `toml:"cooldown"`
}

// StoreConfig selects the breaker state store.
type StoreConfig struct {
	Backend string `toml:"backend"` // sqlite, memory, nats
	NATSURL string `toml:"nats_url"`
	Bucket  string `toml:"bucket"`
}

// NotifyConfig selects notification sinks. Log is always on.
type NotifyConfig struct {
	Bus      bool           `toml:"bus"`
	Telegram TelegramConfig `toml:"telegram"`
}

// TelegramConfig configures the Telegram sink. An empty token disables it.
type TelegramConfig struct {
	Token       string `toml:"token"`
	ChatID      int64  `toml:"chat_id"`
	AlertChatID int64  `toml:"alert_chat_id"`
}

// MetricsConfig selects cycle recorders and the Prometheus endpoint.
type MetricsConfig struct {
	SQLite    bool   `toml:"sqlite"`
	JSONLPath string `toml:"jsonl_path"`
	IndexPath string `toml:"index_path"`
	Bus       bool   `toml:"bus"`

	// Listen is the /metrics address, e.g. ":9464". Empty disables it.
	Listen string `toml:"listen"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	Protocol    string `toml:"protocol"`
	Insecure    bool   `toml:"insecure"`
	Debug       bool   `toml:"debug"`
	ServiceName string `toml:"service_name"`

	// SampleRatio keeps that fraction of cycle traces. 0 keeps all.
	SampleRatio float64 `toml:"sample_ratio"`
}

// DatabaseConfig locates the host SQLite database.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Heartbeat: HeartbeatConfig{
			Enabled:         true,
			Mode:            ModeOneShot,
			IntervalMinutes: 15,
			QuietHoursStart: 22,
			QuietHoursEnd:   8,
			Timezone:        "UTC",
			CheckTimeout:    30 * time.Second,
			LockTTL:         10 * time.Minute,
		},
		Decision: DecisionConfig{
			Enabled: true,
			Timeout: 20 * time.Second,
		},
		LLM: llm.Config{
			MaxTokens: 512,
		},
		Breaker: BreakerConfig{
			Threshold:     3,
			FailureWindow: 5 * time.Minute,
			Cooldown:      time.Hour,
		},
		Store: StoreConfig{
			Backend: StoreSQLite,
			Bucket:  "pulse-state",
		},
		Metrics: MetricsConfig{
			SQLite: true,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "pulse",
		},
		Database: DatabaseConfig{
			Path: "pulse.db",
		},
	}
}

// Load reads path (if non-empty), folds in the standard credentials file,
// applies PULSE_* overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	creds, credPath, err := credentials.Load()
	if err != nil {
		return nil, perrors.InvalidConfig("credentials", fmt.Sprintf("%s: %v", credPath, err))
	}
	cfg.ApplyCredentials(creds)

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes a TOML file over the defaults. Unknown keys are an
// error. An empty path or a missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, perrors.InvalidConfig("file", fmt.Sprintf("%s: %v", path, err))
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, perrors.InvalidConfig("file", "unknown keys: "+strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ApplyCredentials fills secrets that the config file left empty.
func (c *Config) ApplyCredentials(creds *credentials.Credentials) {
	if c.LLM.APIKey == "" {
		provider := c.LLM.Provider
		if provider == "" {
			provider = llm.InferProviderFromModel(c.LLM.Model)
		}
		if provider != "" {
			c.LLM.APIKey = creds.GetAPIKey(provider)
		}
	}
	if c.Notify.Telegram.Token == "" {
		c.Notify.Telegram.Token = creds.TelegramToken()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	h := c.Heartbeat
	switch h.Mode {
	case ModeOneShot, ModeDaemon:
	default:
		return perrors.InvalidConfig("heartbeat.mode", fmt.Sprintf("unknown mode %q (use one-shot or daemon)", h.Mode))
	}
	if h.Schedule != "" {
		if _, err := cron.ParseStandard(h.Schedule); err != nil {
			return perrors.InvalidConfig("heartbeat.schedule", err.Error())
		}
	} else if h.IntervalMinutes < 1 {
		return perrors.InvalidConfig("heartbeat.interval_minutes", "must be at least 1")
	}
	if err := c.QuietHours().Validate(); err != nil {
		return perrors.InvalidConfig("heartbeat.quiet_hours", err.Error())
	}
	if _, err := time.LoadLocation(h.Timezone); err != nil {
		return perrors.InvalidConfig("heartbeat.timezone", err.Error())
	}
	if h.CheckTimeout <= 0 {
		return perrors.InvalidConfig("heartbeat.check_timeout", "must be positive")
	}
	if h.CycleLock && h.LockTTL <= 0 {
		return perrors.InvalidConfig("heartbeat.lock_ttl", "must be positive when cycle_lock is set")
	}

	if c.Decision.Enabled {
		if c.Decision.Timeout <= 0 {
			return perrors.InvalidConfig("decision.timeout", "must be positive")
		}
		if c.Decision.RatePerHour < 0 {
			return perrors.InvalidConfig("decision.rate_per_hour", "must not be negative")
		}
		if c.LLM.Model == "" {
			return perrors.InvalidConfig("llm.model", "required when decision is enabled")
		}
	}

	if err := c.BreakerConfig().Validate(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case StoreSQLite:
	case StoreMemory:
		if c.Heartbeat.Mode == ModeOneShot {
			return perrors.InvalidConfig("store.backend", "memory loses breaker state between one-shot runs (use sqlite or nats)")
		}
	case StoreNATS:
		if c.Store.NATSURL == "" {
			return perrors.InvalidConfig("store.nats_url", "required for the nats backend")
		}
	default:
		return perrors.InvalidConfig("store.backend", fmt.Sprintf("unknown backend %q (use sqlite, memory or nats)", c.Store.Backend))
	}

	if (c.Notify.Bus || c.Metrics.Bus) && c.Store.NATSURL == "" {
		return perrors.InvalidConfig("store.nats_url", "required when bus notifications or bus metrics are enabled")
	}
	if c.Notify.Telegram.Token != "" && c.Notify.Telegram.ChatID == 0 {
		return perrors.InvalidConfig("notify.telegram.chat_id", "required when a telegram token is set")
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Protocol {
		case "grpc", "http":
		default:
			return perrors.InvalidConfig("telemetry.protocol", fmt.Sprintf("unknown protocol %q (use grpc or http)", c.Telemetry.Protocol))
		}
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return perrors.InvalidConfig("telemetry.sample_ratio", "must be between 0 and 1")
	}
	if c.Database.Path == "" {
		return perrors.InvalidConfig("database.path", "required")
	}
	return nil
}

// Interval is the fixed daemon sleep between cycles.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Heartbeat.IntervalMinutes) * time.Minute
}

// Location returns the configured timezone, or UTC if it does not load.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Heartbeat.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// QuietHours returns the configured quiet window.
func (c *Config) QuietHours() situation.QuietHours {
	return situation.QuietHours{Start: c.Heartbeat.QuietHoursStart, End: c.Heartbeat.QuietHoursEnd}
}

// SituationConfig builds the snapshot provider configuration.
func (c *Config) SituationConfig() situation.Config {
	sc := situation.DefaultConfig()
	sc.QuietHours = c.QuietHours()
	sc.Location = c.Location()
	return sc
}

// BreakerConfig converts the TOML section into a breaker.Config.
func (c *Config) BreakerConfig() breaker.Config {
	return breaker.Config{
		Threshold:     c.Breaker.Threshold,
		FailureWindow: c.Breaker.FailureWindow,
		Cooldown:      c.Breaker.Cooldown,
	}
}
