package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/weakevent/core/metrics"
)

const namespace = "weakevent"

// PromSink records listener activity in Prometheus metrics.
type PromSink struct {
	subscriptions *prometheus.CounterVec
	failures      *prometheus.CounterVec
	active        prometheus.Gauge
	dispatches    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	detaches      *prometheus.CounterVec
	cache         *prometheus.GaugeVec
}

// NewPromSink registers listener metrics on the default Prometheus registerer.
// The metrics endpoint is served separately, see NewRouter.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.subscriptions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscriptions_total",
		Help:      "Total number of attached weak listeners",
	}, []string{"event", "strategy"})); err != nil {
		return nil, err
	}
	if s.failures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscribe_failures_total",
		Help:      "Total number of subscriptions that could not be attached",
	}, []string{"event"})); err != nil {
		return nil, err
	}
	if s.active, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_listeners",
		Help:      "Weak listeners currently attached",
	})); err != nil {
		return nil, err
	}
	if s.dispatches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_total",
		Help:      "Total number of firings forwarded to live targets",
	}, []string{"event"})); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_latency_seconds",
		Help:      "Time spent in the target handler per firing",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
	}, []string{"event"})); err != nil {
		return nil, err
	}
	if s.detaches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "detached_total",
		Help:      "Total number of detached listeners by reason",
	}, []string{"event", "reason"})); err != nil {
		return nil, err
	}
	if s.cache, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "resolver_cache",
		Name:      "state",
		Help:      "Resolver cache entries, hits and misses",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordSubscription counts an attached listener.
func (s *PromSink) RecordSubscription(ev coremetrics.SubscriptionEvent) error {
	s.subscriptions.WithLabelValues(ev.Event, ev.Strategy).Inc()
	s.active.Inc()
	return nil
}

// RecordSubscribeFailure counts a failed subscription.
func (s *PromSink) RecordSubscribeFailure(ev coremetrics.SubscribeFailureEvent) error {
	s.failures.WithLabelValues(ev.Event).Inc()
	return nil
}

// RecordDispatch counts a forwarded firing and observes its latency.
func (s *PromSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	s.dispatches.WithLabelValues(ev.Event).Inc()
	s.latency.WithLabelValues(ev.Event).Observe(ev.Latency.Seconds())
	return nil
}

// RecordDetach counts a detach.
func (s *PromSink) RecordDetach(ev coremetrics.DetachEvent) error {
	s.detaches.WithLabelValues(ev.Event, ev.Reason).Inc()
	s.active.Dec()
	return nil
}

// RecordCacheStats publishes the resolver cache snapshot.
func (s *PromSink) RecordCacheStats(st coremetrics.CacheStats) error {
	s.cache.WithLabelValues("entries").Set(float64(st.Entries))
	s.cache.WithLabelValues("hits").Set(float64(st.Hits))
	s.cache.WithLabelValues("misses").Set(float64(st.Misses))
	return nil
}
