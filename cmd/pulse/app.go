package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vinayprograms/pulse/breaker"
	"github.com/vinayprograms/pulse/builtin"
	"github.com/vinayprograms/pulse/bus"
	"github.com/vinayprograms/pulse/checks"
	"github.com/vinayprograms/pulse/config"
	"github.com/vinayprograms/pulse/decision"
	"github.com/vinayprograms/pulse/executor"
	"github.com/vinayprograms/pulse/heartbeat"
	"github.com/vinayprograms/pulse/llm"
	"github.com/vinayprograms/pulse/logging"
	"github.com/vinayprograms/pulse/metrics"
	"github.com/vinayprograms/pulse/notify"
	"github.com/vinayprograms/pulse/ratelimit"
	"github.com/vinayprograms/pulse/shutdown"
	"github.com/vinayprograms/pulse/situation"
	"github.com/vinayprograms/pulse/state"
	"github.com/vinayprograms/pulse/store"
	"github.com/vinayprograms/pulse/telemetry"
)

// phaseConn closes the NATS connection after everything that uses it.
const phaseConn = shutdown.PhaseStores + 10

// app holds every wired component for one process.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	coord  *shutdown.Coordinator

	db       *store.Store
	state    state.StateStore
	breaker  *breaker.Breaker
	registry *checks.Registry
	exec     *executor.Executor
	engine   *heartbeat.Engine

	telemetry *telemetry.Provider
	collector *metrics.PrometheusCollector

	conn *nats.Conn
	bus  *bus.NATSBus
}

// loadConfig reads the config file and applies the --log-level override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) *logging.Logger {
	logger := logging.New()
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logger.SetOutput(out)
	return logger
}

// openBase opens the database and state store and builds the breaker and
// check registry. The inspection commands stop here.
func openBase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (a *app, err error) {
	a = &app{
		cfg:    cfg,
		logger: logger,
		coord:  shutdown.NewCoordinator(shutdown.Config{ContinueOnError: true, Logger: logger}),
	}
	defer func() {
		if err != nil {
			a.coord.Shutdown(context.Background())
			a = nil
		}
	}()

	if err = a.openStores(ctx); err != nil {
		return a, err
	}
	a.breaker, err = breaker.New(a.state, cfg.BreakerConfig(), logger)
	if err != nil {
		return a, err
	}
	a.registry = checks.NewRegistry()
	if err = builtin.Register(a.registry); err != nil {
		return a, err
	}
	return a, nil
}

// newApp wires the full pipeline on top of openBase and registers every
// component with the shutdown coordinator. On error, whatever was already
// opened is shut down.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (a *app, err error) {
	a, err = openBase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			a.coord.Shutdown(context.Background())
			a = nil
		}
	}()

	if err = a.openTelemetry(ctx); err != nil {
		return a, err
	}

	a.collector = metrics.NewPrometheus(nil, "pulse")
	notifier, err := a.sinks()
	if err != nil {
		return a, err
	}
	recorder, err := a.recorders(ctx)
	if err != nil {
		return a, err
	}

	a.exec = executor.New(a.registry,
		executor.WithBreaker(a.breaker),
		executor.WithAlerter(notifier),
		executor.WithCollector(a.collector),
		executor.WithLogger(logger),
		executor.WithData(a.db),
		executor.WithTimeout(cfg.Heartbeat.CheckTimeout),
	)

	provider, err := situation.NewProvider(cfg.SituationConfig(),
		situation.WithPersonaReader(a.db),
		situation.WithEventReader(a.db),
		situation.WithActivityReader(a.db),
		situation.WithLogger(logger),
	)
	if err != nil {
		return a, err
	}

	opts := []heartbeat.Option{
		heartbeat.WithNotifier(notifier),
		heartbeat.WithAlerter(notifier),
		heartbeat.WithRecorder(recorder),
		heartbeat.WithCollector(a.collector),
		heartbeat.WithLockStore(a.state),
		heartbeat.WithLogger(logger),
	}
	if cfg.Decision.Enabled {
		decider, err := a.decider(ctx)
		if err != nil {
			return a, err
		}
		opts = append(opts, heartbeat.WithDecider(decider))
	}

	a.engine, err = heartbeat.New(heartbeat.Config{
		Enabled:   cfg.Heartbeat.Enabled,
		Schedule:  cfg.Heartbeat.Schedule,
		Location:  cfg.Location(),
		CycleLock: cfg.Heartbeat.CycleLock,
		LockTTL:   cfg.Heartbeat.LockTTL,
	}, a.registry, provider, a.exec, opts...)
	if err != nil {
		return a, err
	}

	if cfg.Metrics.Listen != "" {
		a.serveMetrics(cfg.Metrics.Listen)
	}
	return a, nil
}

// openStores opens the host database and the breaker state store.
func (a *app) openStores(ctx context.Context) error {
	db, err := store.Open(ctx, a.cfg.Database.Path)
	if err != nil {
		return err
	}
	a.db = db
	a.coord.Add(db, shutdown.PhaseStores)

	if a.needsNATS() {
		natsCfg := bus.DefaultNATSConfig()
		natsCfg.URL = a.cfg.Store.NATSURL
		conn, err := bus.Connect(natsCfg)
		if err != nil {
			return err
		}
		a.conn = conn
		a.coord.AddFunc("nats", phaseConn, func(context.Context) error {
			return conn.Drain()
		})
	}

	switch a.cfg.Store.Backend {
	case config.StoreNATS:
		natsStore, err := state.NewNATSStore(state.NATSStoreConfig{Conn: a.conn, Bucket: a.cfg.Store.Bucket})
		if err != nil {
			return err
		}
		a.state = natsStore
	case config.StoreMemory:
		a.state = state.NewMemoryStore()
	default:
		sqliteStore, err := state.NewSQLiteStore(ctx, db.DB())
		if err != nil {
			return err
		}
		a.state = sqliteStore
	}
	a.coord.Add(shutdown.Closer("state", a.state.Close), shutdown.PhaseStores)
	return nil
}

func (a *app) needsNATS() bool {
	return a.cfg.Store.Backend == config.StoreNATS || a.cfg.Notify.Bus || a.cfg.Metrics.Bus
}

// natsBus returns the bus shared by the notify and metrics sinks.
func (a *app) natsBus() *bus.NATSBus {
	if a.bus == nil {
		a.bus = bus.NewNATSBusFromConn(a.conn, bus.DefaultNATSConfig())
		a.coord.Add(shutdown.Closer("bus", a.bus.Close), shutdown.PhaseSinks)
	}
	return a.bus
}

func (a *app) openTelemetry(ctx context.Context) error {
	t := a.cfg.Telemetry
	if !t.Enabled {
		return nil
	}
	p, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
		ServiceName: t.ServiceName,
		Endpoint:    t.Endpoint,
		Protocol:    t.Protocol,
		Insecure:    t.Insecure,
		Debug:       t.Debug,
		SampleRatio: t.SampleRatio,
	})
	if err != nil {
		return err
	}
	a.telemetry = p
	a.coord.Add(p, shutdown.PhaseSinks)
	return nil
}

// sinks builds the notification fan-out. The log sink is always present.
func (a *app) sinks() (*notify.Multi, error) {
	sinks := []interface{}{notify.NewLog(a.logger)}
	if a.cfg.Notify.Bus {
		sinks = append(sinks, notify.NewBus(a.natsBus()))
	}
	if tg := a.cfg.Notify.Telegram; tg.Token != "" {
		t, err := notify.NewTelegram(tg.Token, tg.ChatID, tg.AlertChatID)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, t)
	}
	return notify.NewMulti(sinks...), nil
}

// recorders builds the cycle recorders.
func (a *app) recorders(ctx context.Context) (metrics.Recorder, error) {
	m := a.cfg.Metrics
	var all metrics.Multi

	if m.SQLite {
		r, err := metrics.NewSQLiteRecorder(ctx, a.db.DB())
		if err != nil {
			return nil, err
		}
		all = append(all, r)
	}
	if m.JSONLPath != "" {
		r, err := metrics.NewFileRecorder(m.JSONLPath)
		if err != nil {
			return nil, err
		}
		a.coord.Add(shutdown.Closer("metrics-jsonl", r.Close), shutdown.PhaseSinks)
		all = append(all, r)
	}
	if m.IndexPath != "" {
		idx, err := metrics.OpenBleveIndex(m.IndexPath)
		if err != nil {
			return nil, err
		}
		a.coord.Add(shutdown.Closer("metrics-index", idx.Close), shutdown.PhaseSinks)
		all = append(all, idx)
	}
	if m.Bus {
		all = append(all, metrics.NewBusRecorder(a.natsBus()))
	}
	return all, nil
}

func (a *app) decider(ctx context.Context) (*decision.LLMDecider, error) {
	p, err := llm.NewProvider(ctx, a.cfg.LLM)
	if err != nil {
		return nil, err
	}

	name := a.cfg.LLM.Provider
	if name == "" {
		name = llm.InferProviderFromModel(a.cfg.LLM.Model)
	}
	opts := []decision.Option{
		decision.WithTimeout(a.cfg.Decision.Timeout),
		decision.WithLogger(a.logger),
		decision.WithBackendName(name),
	}
	if n := a.cfg.Decision.RatePerHour; n > 0 {
		limiter := ratelimit.NewMemoryLimiter()
		limiter.SetCapacity(decision.Resource, n, time.Hour)
		a.coord.Add(shutdown.Closer("ratelimit", limiter.Close), shutdown.PhaseSinks)
		opts = append(opts, decision.WithLimiter(limiter))
	}
	return decision.NewLLMDecider(decision.FromProvider(p), opts...), nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics_server_failed", map[string]interface{}{"addr": addr, "error": err.Error()})
		}
	}()
	a.coord.AddFunc("metrics-server", shutdown.PhaseEngine, srv.Shutdown)
	a.logger.Info("metrics_server_started", map[string]interface{}{"addr": addr})
}

// close runs the shutdown coordinator with its configured timeout.
func (a *app) close() error {
	err := a.coord.ShutdownWithTimeout()
	if errors.Is(err, shutdown.ErrAlreadyShutdown) {
		return nil
	}
	return err
}
