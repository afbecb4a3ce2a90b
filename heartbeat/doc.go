// Package heartbeat runs the periodic decision cycle.
//
// Each cycle takes one situation snapshot, chooses which registered checks
// to run, runs them one after another through the executor, forwards
// notifications and records a cycle summary:
//
//	snapshot -> quiet hours? -> critical checks only
//	         -> otherwise    -> decider -> known ids
//	                                    -> on error: high-priority fallback
//	         -> execute in order -> notify -> record metrics
//
// Collaborator failures (reader, decider, notifier, recorder) never fail a
// cycle. A panic in the cycle scaffolding is recovered, reported through
// the alerter and turned into status "error" or "partial_success".
//
// # Modes
//
//	engine.Run(ctx, heartbeat.ModeOneShot, 0)                // cron, CI, tests
//	engine.Run(ctx, heartbeat.ModeDaemon, 15*time.Minute)    // long-running host
//
// Daemon mode sleeps the interval (or until the next cron tick when
// Config.Schedule is set) between cycles and returns ctx.Err() once the
// context is cancelled. A cycle in flight finishes its current check and
// skips the rest; its summary is still recorded.
package heartbeat
