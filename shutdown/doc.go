// Package shutdown stops a pulse process in order.
//
// Components register in one of three phases:
//
//	PhaseEngine  (10) heartbeat loop, /metrics server
//	PhaseSinks   (20) notifiers, cycle recorders, bus, telemetry
//	PhaseStores  (30) state store, SQLite, NATS connection
//
// Lower phases finish before higher ones start, so the engine never writes
// to a closed store. Components within a phase shut down concurrently.
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	ctx, stop := coord.SignalContext(context.Background())
//	defer stop()
//
//	coord.Add(tracing, shutdown.PhaseSinks)
//	coord.Add(shutdown.Closer("sqlite", db.Close), shutdown.PhaseStores)
//
//	_, err := engine.Run(ctx, heartbeat.ModeDaemon, interval)
//	coord.ShutdownWithTimeout()
package shutdown
