package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/weakevent/core/metrics"
	"github.com/kilianp07/weakevent/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket listener activity is written to.
type InfluxConfig struct {
	URL     string        `json:"url"`
	Token   string        `json:"token"`
	Org     string        `json:"org"`
	Bucket  string        `json:"bucket"`
	Timeout time.Duration `json:"timeout"`
}

// InfluxSink writes listener activity to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	timeout  time.Duration
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		timeout:  cfg.Timeout,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), sink.timeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSubscription writes an attached listener.
func (s *InfluxSink) RecordSubscription(ev coremetrics.SubscriptionEvent) error {
	p := write.NewPointWithMeasurement("listener_subscribed").
		AddTag("event", ev.Event).
		AddTag("strategy", ev.Strategy).
		AddTag("source_type", ev.SourceType).
		AddField("listener_id", ev.ListenerID).
		AddField("target_type", ev.TargetType).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordSubscribeFailure writes a failed subscription.
func (s *InfluxSink) RecordSubscribeFailure(ev coremetrics.SubscribeFailureEvent) error {
	p := write.NewPointWithMeasurement("listener_subscribe_failed").
		AddTag("event", ev.Event).
		AddTag("source_type", ev.SourceType).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDetach writes a detach.
func (s *InfluxSink) RecordDetach(ev coremetrics.DetachEvent) error {
	p := write.NewPointWithMeasurement("listener_detached").
		AddTag("event", ev.Event).
		AddTag("reason", ev.Reason).
		AddField("listener_id", ev.ListenerID)
	if ev.Error != "" {
		p = p.AddField("error", ev.Error)
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordCacheStats writes a resolver cache snapshot.
func (s *InfluxSink) RecordCacheStats(st coremetrics.CacheStats) error {
	p := write.NewPointWithMeasurement("resolver_cache").
		AddField("entries", st.Entries).
		AddField("hits", st.Hits).
		AddField("misses", st.Misses).
		SetTime(st.Time)
	return s.write(p)
}

// RecordSoakSummary writes the outcome of a soak run.
func (s *InfluxSink) RecordSoakSummary(sum coremetrics.SoakSummary) error {
	p := write.NewPointWithMeasurement("soak_summary").
		AddField("listeners", sum.Listeners).
		AddField("collected", sum.Collected).
		AddField("detached", sum.Detached).
		AddField("dispatches", sum.Dispatches).
		AddField("latency_mean_us", round3(float64(sum.MeanLatency)/float64(time.Microsecond))).
		AddField("latency_stddev_us", round3(float64(sum.StdDevLatency)/float64(time.Microsecond))).
		AddField("duration_s", round3(sum.Duration.Seconds())).
		SetTime(sum.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
