package app

import (
	"context"
	"runtime"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/weakevent/config"
	"github.com/kilianp07/weakevent/core/event"
	coremetrics "github.com/kilianp07/weakevent/core/metrics"
	"github.com/kilianp07/weakevent/weakevent"
)

// Pulse is the long lived source used by the soak run.
type Pulse struct {
	Tick event.Event[int]
}

type soakTarget struct {
	hits int
	_    [32]byte
}

func (t *soakTarget) OnTick(_ any, _ int) { t.hits++ }

// Soak subscribes cfg.Listeners short lived targets per round, fires the
// source cfg.Fires times, drops the targets and checks that the next firing
// detaches them. The summary is recorded to sink when it supports it.
func Soak(ctx context.Context, e *weakevent.Engine, cfg config.SoakConfig, sink coremetrics.MetricsSink) (coremetrics.SoakSummary, error) {
	start := time.Now()
	src := &Pulse{}
	var (
		sum     coremetrics.SoakSummary
		samples []float64
	)
	for round := 0; round < cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		listeners, err := soakRound(e, src, cfg, &samples)
		if err != nil {
			return sum, err
		}
		for i := 0; i < 3; i++ {
			runtime.GC()
		}
		src.Tick.Raise(src, -1)
		for _, l := range listeners {
			sum.Listeners++
			sum.Dispatches += l.Dispatched()
			if !l.IsTargetAlive() {
				sum.Collected++
			}
			if l.State() == weakevent.StateDetached {
				sum.Detached++
			}
		}
	}
	if len(samples) > 0 {
		mean, std := stat.MeanStdDev(samples, nil)
		sum.MeanLatency = time.Duration(mean * float64(time.Second))
		sum.StdDevLatency = time.Duration(std * float64(time.Second))
	}
	sum.Duration = time.Since(start)
	sum.Time = time.Now()
	if r, ok := sink.(coremetrics.SoakRecorder); ok {
		if err := r.RecordSoakSummary(sum); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// soakRound keeps its targets local so they are unreachable once it returns.
func soakRound(e *weakevent.Engine, src *Pulse, cfg config.SoakConfig, samples *[]float64) ([]*weakevent.Listener, error) {
	targets := make([]*soakTarget, cfg.Listeners)
	listeners := make([]*weakevent.Listener, 0, cfg.Listeners)
	for i := range targets {
		targets[i] = &soakTarget{}
		l, err := e.Subscribe(targets[i], src, "Tick", targets[i].OnTick)
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, l)
	}
	for f := 0; f < cfg.Fires; f++ {
		t0 := time.Now()
		src.Tick.Raise(src, f)
		*samples = append(*samples, time.Since(t0).Seconds())
	}
	return listeners, nil
}
