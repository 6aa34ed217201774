// Package app wires configuration, logging, metrics and the weak event
// engine into the runnable service used by the CLI commands.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/weakevent/config"
	"github.com/kilianp07/weakevent/core/events"
	coremetrics "github.com/kilianp07/weakevent/core/metrics"
	coremon "github.com/kilianp07/weakevent/core/monitoring"
	"github.com/kilianp07/weakevent/infra/logger"
	"github.com/kilianp07/weakevent/infra/metrics"
	"github.com/kilianp07/weakevent/infra/monitoring"
	"github.com/kilianp07/weakevent/internal/eventbus"
	"github.com/kilianp07/weakevent/weakevent"
)

// CacheReportInterval is how often resolver cache statistics are recorded.
const CacheReportInterval = 15 * time.Second

// flushTimeout bounds how long Close waits for pending error reports.
const flushTimeout = 2 * time.Second

// Service owns the engine and its observability plumbing.
type Service struct {
	Engine *weakevent.Engine
	Sink   coremetrics.MetricsSink

	cfg      *config.Config
	bus      *eventbus.TypedBus[events.Lifecycle]
	log      logger.Logger
	gatherer prometheus.Gatherer

	mu        sync.Mutex
	cancel    context.CancelFunc
	collector <-chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.Setup(cfg.Logging); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)
	bus := eventbus.NewTyped[events.Lifecycle]()
	engine := weakevent.NewEngine(
		weakevent.WithLogger(logger.New("engine")),
		weakevent.WithLifecycle(bus),
		weakevent.WithPatternFallback(cfg.Resolver.PatternFallbackEnabled()),
	)
	return &Service{
		Engine:   engine,
		Sink:     sink,
		cfg:      cfg,
		bus:      bus,
		log:      logger.New("service"),
		gatherer: prometheus.DefaultGatherer,
	}, nil
}

// Subscribe subscribes through the engine with the configured failure
// policy.
func (s *Service) Subscribe(target, source any, eventName string, handler any, opts ...weakevent.SubscribeOption) (*weakevent.Listener, error) {
	opts = append([]weakevent.SubscribeOption{weakevent.ThrowOnFailure(s.cfg.Listener.ThrowOnFailureEnabled())}, opts...)
	return s.Engine.Subscribe(target, source, eventName, handler, opts...)
}

// Start launches the lifecycle collector, the cache reporter and, when an
// address is configured, the metrics HTTP server. It returns immediately.
// Everything it starts stops when ctx is cancelled or Close is called.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := metrics.StartEventCollector(ctx, s.bus, s.Sink)
	s.mu.Lock()
	s.cancel = cancel
	s.collector = done
	s.mu.Unlock()

	metrics.StartCacheReporter(ctx, s.Engine.Cache(), s.Sink, CacheReportInterval)
	if addr := s.cfg.Metrics.Addr; addr != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := metrics.StartServer(ctx, addr, metrics.NewRouter(s.gatherer, s.Engine.Cache())); err != nil {
				s.log.Errorf("metrics server: %v", err)
			}
		}()
	}
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.wg.Wait()
	return nil
}

// Close releases resources held by the service. Pending lifecycle events
// are drained into the sink before the background work is stopped and the
// sink is closed.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.bus.Close()
		s.mu.Lock()
		done, cancel := s.collector, s.cancel
		s.mu.Unlock()
		if done != nil {
			<-done
		}
		if cancel != nil {
			cancel()
		}
		s.wg.Wait()
		coremon.Flush(flushTimeout)
		if c, ok := s.Sink.(interface{ Close() }); ok {
			c.Close()
		}
	})
	return nil
}

// Config returns the loaded configuration.
func (s *Service) Config() *config.Config { return s.cfg }
