package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/metric"

	"github.com/quickrts/skirmish/internal/combat"
	"github.com/quickrts/skirmish/internal/config"
	"github.com/quickrts/skirmish/internal/curve"
	"github.com/quickrts/skirmish/internal/influx"
	"github.com/quickrts/skirmish/internal/journal"
	"github.com/quickrts/skirmish/internal/logging"
	"github.com/quickrts/skirmish/internal/match"
	"github.com/quickrts/skirmish/internal/monitor"
	intOtel "github.com/quickrts/skirmish/internal/otel"
	"github.com/quickrts/skirmish/internal/perception"
	"github.com/quickrts/skirmish/internal/replication"
	"github.com/quickrts/skirmish/internal/scenario"
	"github.com/quickrts/skirmish/internal/sim"
	"github.com/quickrts/skirmish/internal/transport/loopback"
	"github.com/quickrts/skirmish/internal/transport/websocket"
	"github.com/quickrts/skirmish/pkg/core"
)

const (
	modeHost   = "host"
	modeMirror = "mirror"
	modeDemo   = "demo"
)

// app owns everything a running node needs. Fields are filled by newApp
// and released by close in reverse order.
type app struct {
	mode      string
	node      string
	startedAt time.Time

	logs    *logging.SlogManager
	logger  *slog.Logger
	logFile *os.File
	otel    *intOtel.Provider
	influx  *influx.Manager
	journal journal.Backend

	match    *match.Context
	scenario *scenario.Scenario
	curves   *curve.Set

	closers []io.Closer
}

func newApp(mode, node string) (*app, error) {
	a := &app{mode: mode, node: node, startedAt: time.Now()}

	role := core.Mirror
	if mode != modeMirror {
		role = core.Authority
	}
	a.match = match.NewContext(role)

	if err := a.setupLogging(); err != nil {
		a.close()
		return nil, err
	}
	a.setupInflux()
	if err := a.setupScenario(); err != nil {
		a.close()
		return nil, err
	}
	if role == core.Authority {
		if err := a.setupJournal(); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) setupLogging() error {
	logsDir := viper.GetString("logsDir")
	path := logging.LogFilePath(logsDir, AppName+"."+a.mode, a.startedAt)
	f, err := logging.OpenLogFile(path)
	if err != nil {
		return err
	}
	a.logFile = f

	otelCfg := config.GetOTelConfig()
	a.otel, err = intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		BatchTimeout:   otelCfg.BatchTimeout,
		LogWriter:      f,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
		MetricInterval: config.GetMonitorConfig().Interval,
		Instance:       a.node,
		Role:           a.match.Role().String(),
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	opts := logging.Options{
		File:     f,
		Level:    viper.GetString("logLevel"),
		Provider: a.otel.LoggerProvider(),
		Context:  a.match,
	}

	var gelfErr error
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGelfWriter(gl.Address)
		if err != nil {
			gelfErr = err
		} else {
			opts.Gelf = w
			a.closers = append(a.closers, w)
		}
	}

	a.logs = logging.NewSlogManager()
	a.logs.Setup(opts)
	a.logger = a.logs.Logger()
	slog.SetDefault(a.logger)

	if gelfErr != nil {
		a.logger.Warn("Graylog disabled", "error", gelfErr)
	}
	a.logger.Info("Log file opened", "path", path)
	return nil
}

func (a *app) setupInflux() {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return
	}
	zl := zerolog.New(a.logFile).With().Timestamp().Str("component", "influx").Logger()
	backup := filepath.Join(viper.GetString("logsDir"),
		fmt.Sprintf("%s.%s.influx.gz", AppName, a.startedAt.Format("20060102_150405")))

	m := influx.NewManager(zl, backup)
	if err := m.Connect(cfg); err != nil {
		a.logger.Warn("InfluxDB disabled", "error", err)
		return
	}
	a.influx = m
}

func (a *app) setupScenario() error {
	name := AppName
	path := viper.GetString("scenario")

	if path == "" {
		a.curves = curve.NewSet(config.GetSimConfig().MaxLevels)
	} else {
		s, err := scenario.Load(path)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", path, err)
		}
		a.curves, err = s.Curves()
		if err != nil {
			return fmt.Errorf("scenario %s: %w", path, err)
		}
		a.scenario = s
		if s.Name != "" {
			name = s.Name
		}
		a.logger.Info("Scenario loaded", "path", path, "name", name, "units", len(s.Units))
	}

	a.match.SetMatch(&core.Match{Name: name, Scenario: path, StartedAt: a.startedAt})
	return nil
}

func (a *app) setupJournal() error {
	j, err := createJournal(config.GetJournalConfig())
	if err != nil {
		return err
	}
	if err := j.Init(); err != nil {
		return fmt.Errorf("init journal: %w", err)
	}
	if err := j.StartMatch(a.match.GetMatch()); err != nil {
		_ = j.Close()
		return fmt.Errorf("start match: %w", err)
	}
	a.journal = j
	a.logger.Info("Journal ready", "type", config.GetJournalConfig().Type)
	return nil
}

// newNode builds a replication node on transport t.
func (a *app) newNode(role core.Role, t replication.Transport, sink replication.Sink, logger *slog.Logger) (*replication.Node, error) {
	rc := config.GetReplicationConfig()
	pc := config.GetPerceptionConfig()

	var tel combat.Telemetry
	if a.influx != nil && role == core.Authority {
		tel = influx.NewCombatTelemetry(a.influx, a.match)
	}
	var j journal.Backend
	if role == core.Authority {
		j = a.journal
	}
	var paint func(core.TeamID) colorful.Color
	if a.scenario != nil {
		paint = a.scenario.TeamColor
	}

	return replication.New(replication.Config{
		Perception:         perception.Config{SightRadius: pc.SightRadius, AttackRadius: pc.AttackRadius},
		StatusSync:         replication.ParseStatusSync(rc.StatusSync),
		MaxMessagesPerTick: rc.MaxMessagesPerTick,
	}, replication.Dependencies{
		Role:      role,
		Transport: t,
		Curves:    a.curves,
		Journal:   j,
		Sink:      sink,
		Telemetry: tel,
		Match:     a.match,
		TeamColor: paint,
		Logger:    logger,
	})
}

func (a *app) run(ctx context.Context) error {
	switch a.mode {
	case modeHost:
		return a.runHost(ctx)
	case modeMirror:
		return a.runMirror(ctx)
	default:
		return a.runDemo(ctx)
	}
}

func (a *app) runHost(ctx context.Context) error {
	tc := config.GetTransportConfig()
	hub := websocket.NewHub(websocket.HubConfig{
		Secret:     tc.Secret,
		InboxSize:  config.GetReplicationConfig().InboxSize,
		LeaveGrace: tc.LeaveGrace,
	}, a.journal, a.logger)
	a.closers = append(a.closers, hub)

	n, err := a.newNode(core.Authority, hub, newLogSink(a.logger, a.scenario), a.logger)
	if err != nil {
		return err
	}
	if err := a.spawnScenario(n); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(tc.Path, hub)
	srv := &http.Server{Addr: tc.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Listening for mirrors", "addr", tc.Listen, "path", tc.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case err := <-errCh:
			a.logger.Error("HTTP server failed", "error", err)
			cancel()
		case <-loopCtx.Done():
		}
	}()

	a.loop(loopCtx, n, n)

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) runMirror(ctx context.Context) error {
	tc := config.GetTransportConfig()
	client := websocket.NewClient(websocket.ClientConfig{
		URL:       tc.URL,
		Secret:    tc.Secret,
		Node:      a.node,
		InboxSize: config.GetReplicationConfig().InboxSize,
	}, a.logger)
	if err := client.Dial(); err != nil {
		return fmt.Errorf("connect to %s: %w", tc.URL, err)
	}
	a.closers = append(a.closers, client)
	a.logger.Info("Connected to host", "url", tc.URL)

	n, err := a.newNode(core.Mirror, client, newLogSink(a.logger, a.scenario), a.logger)
	if err != nil {
		return err
	}
	a.loop(ctx, n, n)
	a.logger.Info("Disconnecting from host", "url", tc.URL, "reconnects", client.Reconnects())
	return nil
}

// runDemo runs an authority and one mirror over an in-process bus, both
// advanced by the same loop.
func (a *app) runDemo(ctx context.Context) error {
	bus := loopback.NewBus(a.journal, config.GetReplicationConfig().InboxSize)

	host, err := a.newNode(core.Authority, bus.Host(), nil, a.logger.With("node", "host"))
	if err != nil {
		return err
	}
	if err := a.spawnScenario(host); err != nil {
		return err
	}

	ep, err := bus.Join()
	if err != nil {
		return err
	}
	mirrorLogger := a.logger.With("node", "mirror")
	mirror, err := a.newNode(core.Mirror, ep, newLogSink(mirrorLogger, a.scenario), mirrorLogger)
	if err != nil {
		return err
	}

	a.loop(ctx, pair{host, mirror}, host)
	return nil
}

func (a *app) spawnScenario(n *replication.Node) error {
	if a.scenario == nil {
		return nil
	}
	ids, err := a.scenario.Apply(n)
	if err != nil {
		return err
	}
	a.logger.Info("Scenario spawned", "units", len(ids))
	return nil
}

// loop drives t at the configured tick rate and reports on stats until
// ctx is done.
func (a *app) loop(ctx context.Context, t sim.Ticker, stats monitor.StatsSource) {
	mon := monitor.NewService(monitor.Dependencies{
		Node:       stats,
		Match:      a.match,
		Logger:     a.logger.With("component", "monitor"),
		Influx:     a.influx,
		StatusFile: filepath.Join(viper.GetString("logsDir"), "status.json"),
		Interval:   config.GetMonitorConfig().Interval,
	})
	if err := mon.Start(); err != nil {
		a.logger.Warn("Monitor not started", "error", err)
	}
	defer mon.Stop()

	sc := config.GetSimConfig()
	loop := sim.NewLoop(t, sim.Config{
		TickRate:        sc.TickRate,
		CatchupMaxTicks: sc.CatchupMaxTicks,
	}, sim.Hooks{AfterTick: a.tickMetrics()}, a.logger)
	loop.Run(ctx)
}

// tickMetrics records tick durations on the OTel meter.
func (a *app) tickMetrics() func(sim.Result) {
	meter := a.otel.Meter("github.com/quickrts/skirmish/sim")
	duration, err := meter.Float64Histogram("sim.tick.duration",
		metric.WithDescription("Wall time spent in one tick"),
		metric.WithUnit("ms"))
	if err != nil {
		a.logger.Warn("Tick histogram unavailable", "error", err)
		return nil
	}
	clamped, err := meter.Int64Counter("sim.tick.clamped",
		metric.WithDescription("Ticks whose delta hit the catch-up limit"))
	if err != nil {
		a.logger.Warn("Clamp counter unavailable", "error", err)
		return nil
	}

	ctx := context.Background()
	return func(r sim.Result) {
		duration.Record(ctx, float64(r.Duration.Microseconds())/1000)
		if r.ClampedDelta {
			clamped.Add(ctx, 1)
		}
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && a.logger != nil {
			a.logger.Warn("Close failed", "error", err)
		}
	}
	if a.journal != nil {
		_ = a.journal.EndMatch()
		_ = a.journal.Close()
	}
	if a.influx != nil {
		_ = a.influx.Close()
	}
	if a.otel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otel.Shutdown(ctx); err != nil && a.logger != nil {
			a.logger.Warn("OTel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// pair ticks a host and an in-process mirror together.
type pair struct {
	host, mirror *replication.Node
}

func (p pair) Tick(dt float64) {
	p.host.Tick(dt)
	p.mirror.Tick(dt)
}
