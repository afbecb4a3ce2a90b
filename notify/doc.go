// Package notify delivers check notifications to the user and operator
// alerts to the system channel.
//
// Sinks:
//
//   - Bus: JSON on pulse.notify and pulse.alert
//   - Telegram: bot messages, HTML with a plain-text fallback
//   - Log: structured log lines
//   - Multi: fan-out over any of the above
//
// Callers attach the originating cycle and check with WithOrigin so sinks
// can tag what they send.
package notify
