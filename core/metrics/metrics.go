package metrics

import "time"

// SubscriptionEvent describes an attached listener.
type SubscriptionEvent struct {
	ListenerID string
	Event      string
	TargetType string
	SourceType string
	Strategy   string
	Time       time.Time
}

// MetricsSink records listener activity for observability purposes.
type MetricsSink interface {
	RecordSubscription(ev SubscriptionEvent) error
}

// SubscribeFailureEvent describes a subscription that could not be attached.
type SubscribeFailureEvent struct {
	Event      string
	SourceType string
	Error      string
	Time       time.Time
}

// SubscribeFailureRecorder records failed subscriptions.
type SubscribeFailureRecorder interface {
	RecordSubscribeFailure(ev SubscribeFailureEvent) error
}

// DispatchEvent is one forwarded firing.
type DispatchEvent struct {
	ListenerID string
	Event      string
	Latency    time.Duration
}

// DispatchRecorder records forwarded firings.
type DispatchRecorder interface {
	RecordDispatch(ev DispatchEvent) error
}

// DetachEvent describes a listener leaving its source.
type DetachEvent struct {
	ListenerID string
	Event      string
	Reason     string
	Error      string
	Time       time.Time
}

// DetachRecorder records detaches.
type DetachRecorder interface {
	RecordDetach(ev DetachEvent) error
}

// CacheStats is a snapshot of the resolver cache.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
	Time    time.Time
}

// CacheStatsRecorder records resolver cache snapshots.
type CacheStatsRecorder interface {
	RecordCacheStats(s CacheStats) error
}

// SoakSummary summarizes a soak run.
type SoakSummary struct {
	Listeners     int
	Collected     int
	Detached      int
	Dispatches    uint64
	MeanLatency   time.Duration
	StdDevLatency time.Duration
	Duration      time.Duration
	Time          time.Time
}

// SoakRecorder records soak run summaries.
type SoakRecorder interface {
	RecordSoakSummary(s SoakSummary) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSubscription(SubscriptionEvent) error         { return nil }
func (NopSink) RecordSubscribeFailure(SubscribeFailureEvent) error { return nil }
func (NopSink) RecordDispatch(DispatchEvent) error                 { return nil }
func (NopSink) RecordDetach(DetachEvent) error                     { return nil }
func (NopSink) RecordCacheStats(CacheStats) error                  { return nil }
func (NopSink) RecordSoakSummary(SoakSummary) error                { return nil }
