package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/kilianp07/weakevent/core/metrics"
)

func newTestPromSink(t *testing.T, reg prometheus.Registerer) *PromSink {
	t.Helper()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink, ok := sinkIf.(*PromSink)
	if !ok {
		t.Fatalf("expected PromSink")
	}
	return sink
}

func TestPromSink_Lifecycle(t *testing.T) {
	sink := newTestPromSink(t, prometheus.NewRegistry())

	if err := sink.RecordSubscription(coremetrics.SubscriptionEvent{ListenerID: "l1", Event: "Clicked", Strategy: "declared"}); err != nil {
		t.Fatalf("record subscription: %v", err)
	}
	if err := sink.RecordSubscription(coremetrics.SubscriptionEvent{ListenerID: "l2", Event: "Clicked", Strategy: "declared"}); err != nil {
		t.Fatalf("record subscription: %v", err)
	}
	if err := sink.RecordDispatch(coremetrics.DispatchEvent{ListenerID: "l1", Event: "Clicked", Latency: 20 * time.Microsecond}); err != nil {
		t.Fatalf("record dispatch: %v", err)
	}
	if err := sink.RecordDetach(coremetrics.DetachEvent{ListenerID: "l1", Event: "Clicked", Reason: "target_collected"}); err != nil {
		t.Fatalf("record detach: %v", err)
	}

	expected := `
# HELP weakevent_subscriptions_total Total number of attached weak listeners
# TYPE weakevent_subscriptions_total counter
weakevent_subscriptions_total{event="Clicked",strategy="declared"} 2
`
	if err := testutil.CollectAndCompare(sink.subscriptions, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if v := testutil.ToFloat64(sink.active); v != 1 {
		t.Errorf("expected 1 active listener, got %v", v)
	}
	if v := testutil.ToFloat64(sink.detaches.WithLabelValues("Clicked", "target_collected")); v != 1 {
		t.Errorf("expected 1 detach, got %v", v)
	}
	if c := testutil.CollectAndCount(sink.latency); c == 0 {
		t.Errorf("latency not recorded")
	}
}

func TestPromSink_CacheStatsAndFailures(t *testing.T) {
	sink := newTestPromSink(t, prometheus.NewRegistry())
	if err := sink.RecordCacheStats(coremetrics.CacheStats{Entries: 4, Hits: 10, Misses: 4}); err != nil {
		t.Fatalf("record cache stats: %v", err)
	}
	if err := sink.RecordSubscribeFailure(coremetrics.SubscribeFailureEvent{Event: "Missing"}); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if v := testutil.ToFloat64(sink.cache.WithLabelValues("hits")); v != 10 {
		t.Errorf("expected 10 hits, got %v", v)
	}
	if v := testutil.ToFloat64(sink.failures.WithLabelValues("Missing")); v != 1 {
		t.Errorf("expected 1 failure, got %v", v)
	}
}

func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := newTestPromSink(t, reg)
	second := newTestPromSink(t, reg)
	if first.subscriptions != second.subscriptions {
		t.Fatalf("expected collectors to be shared")
	}
	_ = second.RecordSubscription(coremetrics.SubscriptionEvent{Event: "Tick", Strategy: "registered"})
	if v := testutil.ToFloat64(first.subscriptions.WithLabelValues("Tick", "registered")); v != 1 {
		t.Fatalf("expected shared counter, got %v", v)
	}
}
