package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/c360/mqtt2influxdb/bridge"
	"github.com/c360/mqtt2influxdb/component"
	"github.com/c360/mqtt2influxdb/config"
	"github.com/c360/mqtt2influxdb/health"
	"github.com/c360/mqtt2influxdb/input"
	mqttinput "github.com/c360/mqtt2influxdb/input/mqtt"
	natsinput "github.com/c360/mqtt2influxdb/input/nats"
	"github.com/c360/mqtt2influxdb/mapping"
	"github.com/c360/mqtt2influxdb/metric"
	"github.com/c360/mqtt2influxdb/natsclient"
	"github.com/c360/mqtt2influxdb/output"
	"github.com/c360/mqtt2influxdb/output/file"
	"github.com/c360/mqtt2influxdb/output/influxdb"
	natsoutput "github.com/c360/mqtt2influxdb/output/nats"
	"github.com/c360/mqtt2influxdb/pkg/cache"
)

const (
	healthInterval     = 5 * time.Second
	natsConnectTimeout = 10 * time.Second
)

// run wires the service together and blocks until SIGINT or SIGTERM
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	mcfg, err := mapping.LoadFile(cfg.MappingPath)
	if err != nil {
		return fmt.Errorf("load mapping: %w", err)
	}

	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()

	var engineOpts []mapping.EngineOption
	if cfg.MatchCacheSize > 0 {
		matchCache, err := cache.NewLRU[string, int](cfg.MatchCacheSize, nil)
		if err != nil {
			return fmt.Errorf("create match cache: %w", err)
		}
		if err := cache.Register(registry, "match", matchCache); err != nil {
			return fmt.Errorf("register match cache metrics: %w", err)
		}
		engineOpts = append(engineOpts, mapping.WithMatchCache(matchCache))
	}
	engine := mapping.NewEngine(mcfg, engineOpts...)
	logger.Info("Mapping loaded",
		"path", cfg.MappingPath,
		"entries", engine.Len(),
		"topics", engine.Topics(),
		"match_cache_size", cfg.MatchCacheSize)
	monitor := health.NewMonitor(appName)

	if cfg.Metrics.Port > 0 {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, monitor)
		serverCtx, stopServer := context.WithCancel(ctx)
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := server.Run(serverCtx); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			stopServer()
			<-served
		}()
		logger.Info("Metrics server listening", "address", server.Address())
	}

	var nc *natsclient.Client
	if cfg.NATS.Enabled() {
		nc, err = connectNATS(ctx, cfg.NATS, metrics, monitor, logger)
		if err != nil {
			return err
		}
		defer func() { _ = nc.Close(context.Background()) }()
	}

	sinks, err := buildSinks(ctx, cfg, nc, logger)
	if err != nil {
		return err
	}

	b, err := bridge.New(bridge.Deps{
		Engine:   engine,
		Sinks:    sinks,
		Workers:  cfg.Workers,
		Metrics:  metrics,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		closeSinks(sinks, logger)
		return err
	}

	manager := component.NewManager(logger)
	manager.Add(b)

	inputs, err := buildInputs(cfg, engine.Topics(), b.Handle, nc, metrics, logger)
	if err != nil {
		closeSinks(sinks, logger)
		return err
	}
	for _, in := range inputs {
		manager.Add(in)
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := manager.StartAll(signalCtx, cfg.ShutdownTimeout); err != nil {
		// The bridge closes the sinks only if it got as far as starting
		if manager.States()[b.Meta().Key()] != component.StateStopped {
			closeSinks(sinks, logger)
		}
		return fmt.Errorf("start components: %w", err)
	}
	logger.Info("mqtt2influxdb started")

	go manager.WatchHealth(signalCtx, monitor, healthInterval)

	<-signalCtx.Done()
	logger.Info("Received shutdown signal")

	if err := manager.StopAll(cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	stats := b.Stats()
	logger.Info("mqtt2influxdb shutdown complete",
		"received", stats.Received,
		"mapped", stats.Mapped,
		"no_match", stats.NoMatch,
		"decode_errors", stats.DecodeErrors,
		"queue_dropped", stats.QueueDropped)
	return nil
}

func connectNATS(
	ctx context.Context,
	cfg config.NATSConfig,
	metrics *metric.Metrics,
	monitor *health.Monitor,
	logger *slog.Logger,
) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(metrics),
		natsclient.WithHealthChangeCallback(monitor.ConnectionReporter("natsclient")),
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}

	nc, err := natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS", "url", cfg.URL)
	if err := nc.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
	defer cancel()
	if err := nc.WaitForConnection(connCtx); err != nil {
		_ = nc.Close(context.Background())
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	return nc, nil
}

// buildSinks opens every configured sink. On error the sinks opened so far
// are closed.
func buildSinks(ctx context.Context, cfg *config.Config, nc *natsclient.Client, logger *slog.Logger) ([]output.Sink, error) {
	var sinks []output.Sink
	fail := func(err error) ([]output.Sink, error) {
		closeSinks(sinks, logger)
		return nil, err
	}

	if !cfg.InfluxDB.Disabled {
		s, err := influxdb.New(ctx, cfg.InfluxDB, logger)
		if err != nil {
			return fail(fmt.Errorf("create influxdb sink: %w", err))
		}
		sinks = append(sinks, s)
	}

	if nc != nil && cfg.NATS.PublishEnabled() {
		s, err := natsoutput.New(ctx, nc, natsoutput.Config{
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Stream:        cfg.NATS.Stream,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("create nats sink: %w", err))
		}
		sinks = append(sinks, s)
	}

	if cfg.File.Path != "" {
		s, err := file.New(file.Config{Path: cfg.File.Path, Compress: cfg.File.Compress}, logger)
		if err != nil {
			return fail(fmt.Errorf("create file sink: %w", err))
		}
		sinks = append(sinks, s)
	}

	return sinks, nil
}

func buildInputs(
	cfg *config.Config,
	topics []string,
	handler input.Handler,
	nc *natsclient.Client,
	metrics *metric.Metrics,
	logger *slog.Logger,
) ([]component.LifecycleComponent, error) {
	var inputs []component.LifecycleComponent

	if !cfg.MQTT.Disabled {
		in, err := mqttinput.NewInput(mqttinput.InputDeps{
			Config:  cfg.MQTT,
			Topics:  topics,
			Handler: handler,
			Metrics: metrics,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create mqtt input: %w", err)
		}
		inputs = append(inputs, in)
	}

	if nc != nil && cfg.NATS.Subscribe {
		in, err := natsinput.NewInput(natsinput.InputDeps{
			Client:  nc,
			Topics:  topics,
			Handler: handler,
			Metrics: metrics,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create nats input: %w", err)
		}
		inputs = append(inputs, in)
	}

	return inputs, nil
}

func closeSinks(sinks []output.Sink, logger *slog.Logger) {
	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	if err := stderrors.Join(errs...); err != nil && logger != nil {
		logger.Warn("Closing sinks failed", "error", err)
	}
}
