// Package metrics records the per-cycle audit trail and exposes live
// counters.
//
// Recorders persist one Cycle per heartbeat cycle:
//
//   - SQLiteRecorder: heartbeat_cycles table, readable via Recent and Get
//   - FileRecorder: JSON lines, readable via Recent
//   - BleveIndex: full-text search over reasoning, status and checks
//   - BusRecorder: publishes on pulse.cycle
//   - Multi: fan-out
//
// Collectors count cycles, check outcomes, selection sources and breaker
// trips. PrometheusCollector serves them over HTTP; NopCollector discards
// them.
package metrics
