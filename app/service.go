// Package app assembles the dispatch engine and its infrastructure from the
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/rescuedispatch/config"
	"github.com/kilianp07/rescuedispatch/core/dispatch"
	"github.com/kilianp07/rescuedispatch/core/dispatch/journal"
	"github.com/kilianp07/rescuedispatch/core/ledger"
	coremetrics "github.com/kilianp07/rescuedispatch/core/metrics"
	coremon "github.com/kilianp07/rescuedispatch/core/monitoring"
	coremqtt "github.com/kilianp07/rescuedispatch/core/mqtt"
	"github.com/kilianp07/rescuedispatch/core/rules"
	"github.com/kilianp07/rescuedispatch/core/scenario"
	"github.com/kilianp07/rescuedispatch/core/store"
	"github.com/kilianp07/rescuedispatch/infra/logger"
	"github.com/kilianp07/rescuedispatch/infra/metrics"
	"github.com/kilianp07/rescuedispatch/infra/monitoring"
	"github.com/kilianp07/rescuedispatch/infra/mqtt"
	"github.com/kilianp07/rescuedispatch/infra/sqlitestore"
	"github.com/kilianp07/rescuedispatch/internal/eventbus"
)

// Service owns the engine together with the store, bus, metrics sink and
// field transport it was built with.
type Service struct {
	Engine *dispatch.Engine
	Store  store.Store
	Rules  *rules.MemoryStore

	bus      eventbus.EventBus
	sink     coremetrics.MetricsSink
	notifier coremqtt.Notifier
	client   *mqtt.PahoClient
	log      logger.Logger
	promAddr string
}

// Options adjusts how New assembles the service.
type Options struct {
	// Offline skips the broker connection even when one is configured.
	// Dispatch notices are then recorded in memory.
	Offline bool
}

// New creates a Service from the configuration. The scenario file, when
// configured, is seeded into the store before New returns.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	rs, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	ruleStore, err := rules.NewMemoryStore(rs)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	svc := &Service{Store: st, Rules: ruleStore, log: logg, promAddr: cfg.Metrics.PrometheusPort}
	ok := false
	defer func() {
		if !ok {
			_ = svc.Close()
		}
	}()

	led := ledger.New(st, logger.New("ledger"))
	svc.Engine, err = dispatch.NewEngine(st, ruleStore, led, cfg.Engine, logger.New("engine"))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	jr, err := journal.New(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	svc.Engine.SetJournal(jr)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	svc.sink = sink
	svc.Engine.SetMetricsSink(sink)

	svc.bus = eventbus.New()
	svc.Engine.SetEventBus(svc.bus)

	if cfg.MQTT.Enabled() && !opts.Offline {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.client = client
		svc.notifier = client
	} else {
		svc.notifier = mqtt.NewMockNotifier()
	}
	svc.Engine.SetNotifier(svc.notifier)

	if cfg.Scenario.Path != "" {
		sc, err := scenario.LoadFile(cfg.Scenario.Path)
		if err != nil {
			return nil, err
		}
		stats, err := scenario.Seed(ctx, st, led, sc)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", cfg.Scenario.Path, err)
		}
		logg.Infof("seeded scenario %q: %d teams, %d vehicles, %d tasks", sc.Name, stats.Teams, stats.Vehicles, stats.Tasks)
	}
	ok = true
	return svc, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "sqlite":
		s, err := sqlitestore.Open(ctx, cfg.DSN, logger.New("sqlitestore"))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return s, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

// Notifier returns the field transport the engine notifies through.
func (s *Service) Notifier() coremqtt.Notifier { return s.notifier }

// Run starts the metrics collector and endpoint, then runs the engine until
// the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if s.promAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	var statuses <-chan coremqtt.StatusUpdate
	if s.client != nil {
		statuses = s.client.Statuses()
	}
	s.log.Infof("dispatch engine running")
	err := s.Engine.Run(ctx, statuses)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.Engine != nil {
		errs = append(errs, s.Engine.Close())
	}
	if s.client != nil {
		s.client.Disconnect()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
