package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/pulse/credentials"
	perrors "github.com/vinayprograms/pulse/errors"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulse.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.LLM.Model = "claude-haiku-4-5"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Heartbeat.Enabled)
	assert.Equal(t, ModeOneShot, cfg.Heartbeat.Mode)
	assert.Equal(t, StoreSQLite, cfg.Store.Backend, "breaker state must outlive one-shot runs")
	assert.Equal(t, 15*time.Minute, cfg.Interval())
	assert.Equal(t, 22, cfg.QuietHours().Start)
	assert.Equal(t, 8, cfg.QuietHours().End)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.NoError(t, cfg.BreakerConfig().Validate())

	// The decider needs a model; everything else is usable as is.
	assert.True(t, perrors.Is(cfg.Validate(), perrors.ErrCodeInvalidConfig))
	assert.NoError(t, validConfig().Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
log_level = "debug"

[heartbeat]
mode = "daemon"
interval_minutes = 5
quiet_hours_start = 23
quiet_hours_end = 6
timezone = "Europe/Berlin"
check_timeout = "10s"
cycle_lock = true

[decision]
timeout = "5s"
rate_per_hour = 30

[llm]
model = "gpt-4o-mini"
max_tokens = 256

[llm.retry]
max_retries = 1
init_backoff = "250ms"

[store]
backend = "nats"
nats_url = "nats://localhost:4222"

[notify]
bus = true

[notify.telegram]
chat_id = 42

[metrics]
jsonl_path = "/tmp/cycles.jsonl"
listen = ":9464"
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ModeDaemon, cfg.Heartbeat.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Interval())
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
	assert.Equal(t, 10*time.Second, cfg.Heartbeat.CheckTimeout)
	assert.True(t, cfg.Heartbeat.CycleLock)
	assert.Equal(t, 10*time.Minute, cfg.Heartbeat.LockTTL, "unset keys keep defaults")
	assert.Equal(t, 5*time.Second, cfg.Decision.Timeout)
	assert.Equal(t, 30, cfg.Decision.RatePerHour)
	assert.Equal(t, 250*time.Millisecond, cfg.LLM.Retry.InitBackoff)
	assert.Equal(t, StoreNATS, cfg.Store.Backend)
	assert.Equal(t, int64(42), cfg.Notify.Telegram.ChatID)
	assert.True(t, cfg.Metrics.SQLite)
	assert.Equal(t, ":9464", cfg.Metrics.Listen)

	sc := cfg.SituationConfig()
	assert.Equal(t, 23, sc.QuietHours.Start)
	assert.Equal(t, "Europe/Berlin", sc.Location.String())
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(writeFile(t, "[heartbeat]\nintervl_minutes = 5\n"))
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidConfig))
	assert.Contains(t, err.Error(), "heartbeat.intervl_minutes")

	_, err = LoadFile(writeFile(t, "[heartbeat\n"))
	assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidConfig))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"PULSE_ENABLED":           "false",
		"PULSE_MODE":              "daemon",
		"PULSE_INTERVAL_MINUTES":  " 30 ",
		"PULSE_QUIET_HOURS_START": "0",
		"PULSE_QUIET_HOURS_END":   "0",
		"PULSE_LLM_MODEL":         "gemini-2.0-flash",
		"PULSE_LLM_API_KEY":       "key",
		"PULSE_TELEGRAM_TOKEN":    "123:abc",
		"PULSE_TELEGRAM_CHAT_ID":  "-100123",
		"PULSE_NATS_URL":          "nats://nats:4222",
		"UNRELATED":               "ignored",
	}))
	require.NoError(t, err)

	assert.False(t, cfg.Heartbeat.Enabled)
	assert.Equal(t, ModeDaemon, cfg.Heartbeat.Mode)
	assert.Equal(t, 30, cfg.Heartbeat.IntervalMinutes)
	assert.Equal(t, 0, cfg.Heartbeat.QuietHoursStart)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, "key", cfg.LLM.APIKey)
	assert.Equal(t, int64(-100123), cfg.Notify.Telegram.ChatID)
	assert.Equal(t, "nats://nats:4222", cfg.Store.NATSURL)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_Malformed(t *testing.T) {
	tests := map[string]string{
		"PULSE_ENABLED":          "maybe",
		"PULSE_INTERVAL_MINUTES": "fifteen",
		"PULSE_TELEGRAM_CHAT_ID": "chat",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			err := Default().ApplyEnv(env(map[string]string{key: value}))
			require.Error(t, err)
			assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidConfig))
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad mode", func(c *Config) { c.Heartbeat.Mode = "forever" }, "heartbeat.mode"},
		{"zero interval", func(c *Config) { c.Heartbeat.IntervalMinutes = 0 }, "heartbeat.interval_minutes"},
		{"bad schedule", func(c *Config) { c.Heartbeat.Schedule = "every day" }, "heartbeat.schedule"},
		{"quiet hour out of range", func(c *Config) { c.Heartbeat.QuietHoursEnd = 24 }, "heartbeat.quiet_hours"},
		{"bad timezone", func(c *Config) { c.Heartbeat.Timezone = "Mars/Olympus" }, "heartbeat.timezone"},
		{"zero check timeout", func(c *Config) { c.Heartbeat.CheckTimeout = 0 }, "heartbeat.check_timeout"},
		{"lock without ttl", func(c *Config) { c.Heartbeat.CycleLock = true; c.Heartbeat.LockTTL = 0 }, "heartbeat.lock_ttl"},
		{"no model", func(c *Config) { c.LLM.Model = "" }, "llm.model"},
		{"negative rate", func(c *Config) { c.Decision.RatePerHour = -1 }, "decision.rate_per_hour"},
		{"zero threshold", func(c *Config) { c.Breaker.Threshold = 0 }, "breaker.threshold"},
		{"unknown store", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"memory store in one-shot", func(c *Config) { c.Store.Backend = StoreMemory }, "store.backend"},
		{"nats without url", func(c *Config) { c.Store.Backend = StoreNATS }, "store.nats_url"},
		{"bus without url", func(c *Config) { c.Notify.Bus = true }, "store.nats_url"},
		{"telegram without chat", func(c *Config) { c.Notify.Telegram.Token = "t" }, "notify.telegram.chat_id"},
		{"bad telemetry protocol", func(c *Config) { c.Telemetry.Enabled = true; c.Telemetry.Protocol = "udp" }, "telemetry.protocol"},
		{"no database", func(c *Config) { c.Database.Path = "" }, "database.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidConfig))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_MemoryStoreInDaemon(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Backend = StoreMemory
	cfg.Heartbeat.Mode = ModeDaemon
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ScheduleReplacesInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Heartbeat.IntervalMinutes = 0
	cfg.Heartbeat.Schedule = "*/10 7-21 * * 1-5"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_DecisionDisabled(t *testing.T) {
	cfg := Default()
	cfg.Decision.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestApplyCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[anthropic]
api_key = "from-file"

[telegram]
token = "bot-token"
`), 0600))
	creds, err := credentials.LoadFile(path)
	require.NoError(t, err)

	cfg := validConfig()
	cfg.ApplyCredentials(creds)
	assert.Equal(t, "from-file", cfg.LLM.APIKey, "provider inferred from model")
	assert.Equal(t, "bot-token", cfg.Notify.Telegram.Token)

	cfg = validConfig()
	cfg.LLM.APIKey = "explicit"
	cfg.ApplyCredentials(creds)
	assert.Equal(t, "explicit", cfg.LLM.APIKey, "config value wins over credentials")
}
