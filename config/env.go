package config

import (
	"strconv"
	"strings"

	perrors "github.com/vinayprograms/pulse/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PULSE_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv applies PULSE_* overrides. Malformed values are INVALID_CONFIG.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("LOG_LEVEL", &c.LogLevel)

	e.boolean("ENABLED", &c.Heartbeat.Enabled)
	e.str("MODE", &c.Heartbeat.Mode)
	e.integer("INTERVAL_MINUTES", &c.Heartbeat.IntervalMinutes)
	e.str("SCHEDULE", &c.Heartbeat.Schedule)
	e.integer("QUIET_HOURS_START", &c.Heartbeat.QuietHoursStart)
	e.integer("QUIET_HOURS_END", &c.Heartbeat.QuietHoursEnd)
	e.str("TIMEZONE", &c.Heartbeat.Timezone)

	e.boolean("DECISION_ENABLED", &c.Decision.Enabled)
	e.str("LLM_PROVIDER", &c.LLM.Provider)
	e.str("LLM_MODEL", &c.LLM.Model)
	e.str("LLM_API_KEY", &c.LLM.APIKey)
	e.str("LLM_BASE_URL", &c.LLM.BaseURL)

	e.str("TELEGRAM_TOKEN", &c.Notify.Telegram.Token)
	e.int64("TELEGRAM_CHAT_ID", &c.Notify.Telegram.ChatID)

	e.str("STORE_BACKEND", &c.Store.Backend)
	e.str("NATS_URL", &c.Store.NATSURL)
	e.str("DATABASE", &c.Database.Path)
	e.str("METRICS_LISTEN", &c.Metrics.Listen)

	return e.err
}

// envReader keeps the first parse error so call sites stay flat.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil || e.lookup == nil {
		return "", false
	}
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(name, reason string) {
	e.err = perrors.InvalidConfig(EnvPrefix+name, reason)
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) boolean(name string, dst *bool) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, "must be a boolean")
		return
	}
	*dst = b
}

func (e *envReader) integer(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, "must be an integer")
		return
	}
	*dst = n
}

func (e *envReader) int64(name string, dst *int64) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(name, "must be an integer")
		return
	}
	*dst = n
}
