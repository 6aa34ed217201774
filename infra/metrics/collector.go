package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/weakevent/core/cache"
	"github.com/kilianp07/weakevent/core/events"
	coremetrics "github.com/kilianp07/weakevent/core/metrics"
	coremon "github.com/kilianp07/weakevent/core/monitoring"
	"github.com/kilianp07/weakevent/infra/logger"
	"github.com/kilianp07/weakevent/internal/eventbus"
)

// StartEventCollector subscribes to the lifecycle bus and records metrics for
// events. Failed subscriptions and failed detaches are also reported to the
// installed monitor. It stops when the context is canceled or the bus is
// closed. The returned channel is closed once the collector has stopped.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.Lifecycle], sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log := logger.New("metrics-collector")
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		defer coremon.Recover()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				capture(ev)
				if err := record(sink, ev); err != nil {
					log.Warnf("record %T: %v", ev, err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev events.Lifecycle) error {
	switch e := ev.(type) {
	case events.Subscribed:
		return sink.RecordSubscription(coremetrics.SubscriptionEvent{
			ListenerID: e.ListenerID,
			Event:      e.Event,
			TargetType: e.TargetType,
			SourceType: e.SourceType,
			Strategy:   e.Strategy,
			Time:       e.Time,
		})
	case events.SubscribeFailed:
		if r, ok := sink.(coremetrics.SubscribeFailureRecorder); ok {
			return r.RecordSubscribeFailure(coremetrics.SubscribeFailureEvent{
				Event:      e.Event,
				SourceType: e.SourceType,
				Error:      errString(e.Err),
				Time:       e.Time,
			})
		}
	case events.Dispatched:
		if r, ok := sink.(coremetrics.DispatchRecorder); ok {
			return r.RecordDispatch(coremetrics.DispatchEvent{ListenerID: e.ListenerID, Event: e.Event, Latency: e.Latency})
		}
	case events.Detached:
		if r, ok := sink.(coremetrics.DetachRecorder); ok {
			return r.RecordDetach(coremetrics.DetachEvent{
				ListenerID: e.ListenerID,
				Event:      e.Event,
				Reason:     string(e.Reason),
				Error:      errString(e.Err),
				Time:       e.Time,
			})
		}
	}
	return nil
}

func capture(ev events.Lifecycle) {
	switch e := ev.(type) {
	case events.SubscribeFailed:
		coremon.CaptureException(e.Err, map[string]string{
			"module":      "listener",
			"event":       e.Event,
			"source_type": e.SourceType,
		})
	case events.Detached:
		coremon.CaptureException(e.Err, map[string]string{
			"module":   "listener",
			"listener": e.ListenerID,
			"event":    e.Event,
			"reason":   string(e.Reason),
		})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// StartCacheReporter records a resolver cache snapshot every interval until
// ctx is canceled. Sinks without a CacheStatsRecorder are skipped.
func StartCacheReporter(ctx context.Context, c *cache.ResolverCache, sink coremetrics.MetricsSink, interval time.Duration) {
	r, ok := sink.(coremetrics.CacheStatsRecorder)
	if !ok || c == nil || interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				_ = r.RecordCacheStats(CacheSnapshot(c, now))
			}
		}
	}()
}

// CacheSnapshot reads the counters of c.
func CacheSnapshot(c *cache.ResolverCache, now time.Time) coremetrics.CacheStats {
	hits, misses := c.Stats()
	return coremetrics.CacheStats{Entries: c.Len(), Hits: hits, Misses: misses, Time: now}
}
