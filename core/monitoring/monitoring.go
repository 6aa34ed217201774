// Package monitoring reports listener failures to an error tracker.
package monitoring

import (
	"sync/atomic"
	"time"
)

// panicFlush bounds how long Recover waits before re-panicking.
const panicFlush = 2 * time.Second

// Monitor receives errors worth surfacing outside the logs.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	CapturePanic(v any)
	Flush(timeout time.Duration)
}

// NopMonitor drops everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any)                          {}
func (NopMonitor) Flush(time.Duration)                       {}

type holder struct{ m Monitor }

var current atomic.Pointer[holder]

func init() { current.Store(&holder{NopMonitor{}}) }

// Init replaces the process wide monitor. A nil monitor is ignored.
func Init(m Monitor) {
	if m != nil {
		current.Store(&holder{m})
	}
}

// Current returns the installed monitor.
func Current() Monitor { return current.Load().m }

// CaptureException forwards err with tags. Nil errors are dropped.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	Current().CaptureException(err, tags)
}

// Recover reports a panic of the calling goroutine and re-panics. It must be
// deferred directly.
func Recover() {
	if r := recover(); r != nil {
		m := Current()
		m.CapturePanic(r)
		m.Flush(panicFlush)
		panic(r)
	}
}

// Flush waits up to timeout for buffered reports.
func Flush(d time.Duration) {
	Current().Flush(d)
}
