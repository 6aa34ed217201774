package listener

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/weakevent/core/cache"
	"github.com/kilianp07/weakevent/core/delegate"
	"github.com/kilianp07/weakevent/core/event"
	"github.com/kilianp07/weakevent/core/events"
	"github.com/kilianp07/weakevent/core/resolver"
	"github.com/kilianp07/weakevent/internal/eventbus"
)

type ClickArgs struct{ X, Y int }

// Button exposes Clicked through a method pair and counts removals.
type Button struct {
	name    string
	clicks  event.Event[*ClickArgs]
	removes int
}

func (b *Button) AddClicked(h event.Handler[*ClickArgs]) event.Token { return b.clicks.Add(h) }
func (b *Button) RemoveClicked(t event.Token) bool {
	b.removes++
	return b.clicks.Remove(t)
}
func (b *Button) Click(x, y int) { b.clicks.Raise(b, &ClickArgs{X: x, Y: y}) }

type Clickable interface {
	AddClicked(h event.Handler[*ClickArgs]) event.Token
	RemoveClicked(t event.Token) bool
}

// Gauge raises argument-only events whose handlers return a value.
type Gauge struct {
	name     string
	handlers []func(float64) bool
}

func (g *Gauge) AddLevel(h func(float64) bool) int {
	g.handlers = append(g.handlers, h)
	return len(g.handlers) - 1
}
func (g *Gauge) RemoveLevel(i int) { g.handlers[i] = nil }
func (g *Gauge) Set(v float64) (accepted []bool) {
	for _, h := range g.handlers {
		if h != nil {
			accepted = append(accepted, h(v))
		}
	}
	return accepted
}

type observer struct {
	name    string
	senders []any
	args    []*ClickArgs
	pings   int
	levels  []float64
	hits    *int
}

func (o *observer) OnClicked(sender any, args *ClickArgs) {
	o.senders = append(o.senders, sender)
	o.args = append(o.args, args)
	if o.hits != nil {
		*o.hits++
	}
}
func (o *observer) OnPing()                          { o.pings++ }
func (o *observer) OnLevel(sender any, v float64)    { o.levels = append(o.levels, v) }
func (o *observer) OnText(sender any, s string)      {}
func (o *observer) Wrong(a, b, c int)                {}
func (o *observer) Boom(sender any, args *ClickArgs) { panic("boom") }

var (
	staticMu   sync.Mutex
	staticHits int
)

func countStatic(sender any, args *ClickArgs) {
	staticMu.Lock()
	staticHits++
	staticMu.Unlock()
}

func countStaticNoArgs() {
	staticMu.Lock()
	staticHits++
	staticMu.Unlock()
}

func readStaticHits() int {
	staticMu.Lock()
	defer staticMu.Unlock()
	return staticHits
}

// recordingLogger keeps warnings and errors.
type recordingLogger struct {
	mu     sync.Mutex
	warns  []string
	errors []string
}

func (l *recordingLogger) Debugf(string, ...any)         {}
func (l *recordingLogger) Debugw(string, map[string]any) {}
func (l *recordingLogger) Infof(string, ...any)          {}
func (l *recordingLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}
func (l *recordingLogger) Errorf(format string, args ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func testDeps() Deps {
	c := cache.New()
	return Deps{
		Resolver:    resolver.New(resolver.WithCache(c)),
		Synthesizer: delegate.NewSynthesizer(c),
	}
}

func collect(cond func() bool) bool {
	for i := 0; i < 20; i++ {
		runtime.GC()
		if cond() {
			return true
		}
	}
	return cond()
}

func TestListener_ButtonScenario(t *testing.T) {
	deps := testDeps()
	btn := &Button{name: "ok"}
	hits := 0
	obj := &observer{name: "obj", hits: &hits}

	l, err := Subscribe(deps, Options{Target: obj, Source: btn, EventName: "Clicked", Handler: obj.OnClicked, ThrowOnFailure: true})
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, StateActive, l.State())
	assert.Equal(t, reflect.TypeFor[*ClickArgs](), l.ArgsType())

	for i := 1; i <= 3; i++ {
		btn.Click(i, -i)
	}
	require.Len(t, obj.args, 3)
	for i, a := range obj.args {
		assert.Equal(t, i+1, a.X)
		assert.Equal(t, -(i + 1), a.Y)
		assert.Same(t, btn, obj.senders[i])
	}
	assert.Equal(t, uint64(3), l.Dispatched())

	obj = nil
	if !collect(func() bool { return !l.IsTargetAlive() }) {
		t.Skip("target not collected")
	}
	btn.Click(9, 9)
	assert.Equal(t, 3, hits)
	assert.Equal(t, StateDetached, l.State())
	assert.Equal(t, 1, btn.removes)
	assert.Zero(t, btn.clicks.Count())
	assert.Nil(t, l.Target())

	l.Detach()
	assert.Equal(t, 1, btn.removes)
}

func TestListener_DetachIsIdempotent(t *testing.T) {
	btn := &Button{name: "b"}
	o := &observer{name: "o"}
	l, err := Subscribe(testDeps(), Options{Target: o, Source: btn, EventName: "Clicked", Handler: o.OnClicked})
	require.NoError(t, err)

	l.Detach()
	l.Detach()
	btn.Click(1, 1)
	assert.Equal(t, 1, btn.removes)
	assert.Empty(t, o.args)
	assert.False(t, l.IsAttached())

	l.OnEvent(btn, &ClickArgs{})
	assert.Empty(t, o.args)
}

func TestListener_ConcurrentDetach(t *testing.T) {
	btn := &Button{name: "b"}
	o := &observer{name: "o"}
	l, err := Subscribe(testDeps(), Options{Target: o, Source: btn, EventName: "Clicked", Handler: o.OnClicked})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Detach()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, btn.removes)
}

func TestListener_ResolutionFailure(t *testing.T) {
	btn := &Button{name: "b"}
	o := &observer{name: "o"}
	log := &recordingLogger{}
	deps := testDeps()
	deps.Logger = log

	l, err := Subscribe(deps, Options{Target: o, Source: btn, EventName: "Pressed", Handler: o.OnClicked, ThrowOnFailure: true})
	assert.Nil(t, l)
	assert.ErrorIs(t, err, ErrAccessorNotFound)
	assert.Len(t, log.errors, 1)

	l, err = Subscribe(deps, Options{Target: o, Source: btn, EventName: "Pressed", Handler: o.OnClicked})
	assert.Nil(t, l)
	assert.NoError(t, err)
	assert.Len(t, log.warns, 1)
}

func TestListener_ConfigurationErrors(t *testing.T) {
	btn := &Button{name: "b"}
	o := &observer{name: "o"}
	var nilObserver *observer

	cases := []struct {
		name string
		opts Options
		want error
	}{
		{"both ends nil", Options{EventName: "Clicked", Handler: countStatic}, ErrStaticToStatic},
		{"typed nil target and no source", Options{Target: nilObserver, EventName: "Clicked", Handler: countStatic}, ErrStaticToStatic},
		{"static handler on static event", Options{Source: btn, StaticSource: true, EventName: "Clicked", Handler: countStatic}, ErrStaticToStatic},
		{"no source", Options{Target: o, EventName: "Clicked", Handler: o.OnClicked}, ErrNilSource},
		{"closure", Options{Target: o, Source: btn, EventName: "Clicked", Handler: func(any, *ClickArgs) { o.pings++ }}, ErrUnsupportedCallable},
		{"three parameters", Options{Target: o, Source: btn, EventName: "Clicked", Handler: o.Wrong}, ErrUnsupportedHandlerShape},
		{"incompatible args", Options{Target: o, Source: btn, EventName: "Clicked", Handler: o.OnText}, ErrIncompatibleHandler},
		{"no event name", Options{Target: o, Source: btn, Handler: o.OnClicked}, ErrInvalidOptions},
		{"source type mismatch", Options{Target: o, Source: btn, SourceType: reflect.TypeFor[*Gauge](), EventName: "Clicked", Handler: o.OnClicked}, ErrInvalidOptions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.ThrowOnFailure = false
			l, err := Subscribe(testDeps(), tc.opts)
			assert.Nil(t, l)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, btn.clicks.Count())
}

func TestListener_StaticHandlers(t *testing.T) {
	btn := &Button{name: "b"}
	before := readStaticHits()

	withArgs, err := Subscribe(testDeps(), Options{Source: btn, EventName: "Clicked", Handler: countStatic})
	require.NoError(t, err)
	noArgs, err := Subscribe(testDeps(), Options{Source: btn, EventName: "Clicked", Handler: countStaticNoArgs})
	require.NoError(t, err)
	assert.True(t, withArgs.IsStaticHandler())
	assert.True(t, withArgs.IsTargetAlive())

	btn.Click(1, 2)
	assert.Equal(t, before+2, readStaticHits())

	withArgs.Detach()
	noArgs.Detach()
	btn.Click(1, 2)
	assert.Equal(t, before+2, readStaticHits())
	assert.Equal(t, 2, btn.removes)
}

func TestListener_InstanceWithoutArgs(t *testing.T) {
	btn := &Button{name: "b"}
	o := &observer{name: "o"}
	l, err := Subscribe(testDeps(), Options{Target: o, Source: btn, EventName: "Clicked", Handler: o.OnPing})
	require.NoError(t, err)
	assert.Nil(t, l.ArgsType())

	btn.Click(0, 0)
	btn.Click(0, 0)
	assert.Equal(t, 2, o.pings)
}

func TestListener_MethodExpression(t *testing.T) {
	btn := &Button{name: "b"}
	o := &observer{name: "o"}
	_, err := Subscribe(testDeps(), Options{Target: o, Source: btn, EventName: "Clicked", Handler: (*observer).OnClicked})
	require.NoError(t, err)
	btn.Click(4, 2)
	require.Len(t, o.args, 1)
	assert.Equal(t, 4, o.args[0].X)
}

func TestListener_ArgsOnlyHandlerType(t *testing.T) {
	g := &Gauge{name: "g"}
	o := &observer{name: "o"}
	l, err := Subscribe(testDeps(), Options{Target: o, Source: g, EventName: "Level", Handler: o.OnLevel, ThrowOnFailure: true})
	require.NoError(t, err)

	assert.Equal(t, []bool{false}, g.Set(0.5))
	assert.Equal(t, []float64{0.5}, o.levels)

	l.Detach()
	assert.Empty(t, g.Set(1))
}

func TestListener_ExplicitInterfaceSource(t *testing.T) {
	btn := &Button{name: "b"}
	o := &observer{name: "o"}
	var src Clickable = btn

	l, err := SubscribeToWeakEventWithExplicitSourceType[*observer, Clickable, *ClickArgs](testDeps(), o, src, "Clicked", o.OnClicked, true)
	require.NoError(t, err)
	assert.Equal(t, resolver.Declared, l.Strategy())

	got, ok := l.Target()
	require.True(t, ok)
	assert.Same(t, o, got)
	s, ok := l.Source()
	require.True(t, ok)
	assert.Same(t, btn, s)

	btn.Click(1, 1)
	l.OnEvent(btn, &ClickArgs{X: 7})
	require.Len(t, o.args, 2)
	assert.Equal(t, 7, o.args[1].X)
}

func TestListener_StaticSourceIsHeldStrongly(t *testing.T) {
	btn := &Button{name: "static"}
	o := &observer{name: "o"}
	l, err := SubscribeStatic[*observer, *Button, *ClickArgs](testDeps(), o, btn, "Clicked", o.OnClicked, true)
	require.NoError(t, err)
	assert.True(t, l.IsStaticEvent())
	btn.Click(1, 1)
	assert.Len(t, o.args, 1)
}

func TestListener_HandlerPanicPropagates(t *testing.T) {
	btn := &Button{name: "b"}
	o := &observer{name: "o"}
	l, err := Subscribe(testDeps(), Options{Target: o, Source: btn, EventName: "Clicked", Handler: o.Boom})
	require.NoError(t, err)
	assert.PanicsWithValue(t, "boom", func() { btn.Click(1, 1) })
	assert.True(t, l.IsAttached())
}

func TestListener_DetachFailureIsLogged(t *testing.T) {
	type Sensor struct {
		id       string
		readings event.Event[*ClickArgs]
	}
	errGone := errors.New("gone")
	c := cache.New()
	r := resolver.New(resolver.WithCache(c))
	st := reflect.TypeFor[*Sensor]()
	require.NoError(t, r.Register(st, "Reading",
		func(s *Sensor, h event.Handler[*ClickArgs]) event.Token { return s.readings.Add(h) },
		func(s *Sensor, tok event.Token) error { return errGone },
	))
	log := &recordingLogger{}
	bus := eventbus.NewTyped[events.Lifecycle]()
	sub := bus.Subscribe()
	deps := Deps{Resolver: r, Synthesizer: delegate.NewSynthesizer(c), Logger: log, Lifecycle: bus}

	s := &Sensor{id: "s"}
	o := &observer{name: "o"}
	l, err := Subscribe(deps, Options{Target: o, Source: s, EventName: "Reading", Handler: o.OnClicked, ThrowOnFailure: true})
	require.NoError(t, err)
	assert.Equal(t, resolver.Registered, l.Strategy())

	assert.NotPanics(t, l.Detach)
	assert.Equal(t, StateDetached, l.State())
	require.Len(t, log.warns, 1)
	assert.Contains(t, log.warns[0], "gone")

	<-sub // subscribed
	ev := (<-sub).(events.Detached)
	assert.Equal(t, events.ReasonExplicit, ev.Reason)
	assert.ErrorIs(t, ev.Err, errGone)
}

func TestListener_PublishesLifecycle(t *testing.T) {
	bus := eventbus.NewTyped[events.Lifecycle]()
	sub := bus.Subscribe()
	deps := testDeps()
	deps.Lifecycle = bus

	btn := &Button{name: "b"}
	o := &observer{name: "o"}
	l, err := Subscribe(deps, Options{Target: o, Source: btn, EventName: "Clicked", Handler: o.OnClicked})
	require.NoError(t, err)
	btn.Click(1, 1)
	l.Detach()
	_, _ = Subscribe(deps, Options{Target: o, Source: btn, EventName: "Missing", Handler: o.OnClicked})

	subscribed := (<-sub).(events.Subscribed)
	assert.Equal(t, l.ID(), subscribed.ListenerID)
	assert.Equal(t, "declared", subscribed.Strategy)
	assert.Equal(t, "*listener.Button", subscribed.SourceType)
	dispatched := (<-sub).(events.Dispatched)
	assert.Equal(t, l.ID(), dispatched.ListenerID)
	detached := (<-sub).(events.Detached)
	assert.Equal(t, events.ReasonExplicit, detached.Reason)
	assert.NoError(t, detached.Err)
	failed := (<-sub).(events.SubscribeFailed)
	assert.Equal(t, "Missing", failed.Event)
	assert.ErrorIs(t, failed.Err, ErrAccessorNotFound)
}

// Toggle raises Changed with its current value as soon as a handler is added.
type Toggle struct {
	on      bool
	changed event.Event[*ClickArgs]
}

func (t *Toggle) AddChanged(h event.Handler[*ClickArgs]) event.Token {
	h(t, &ClickArgs{X: 1})
	return t.changed.Add(h)
}
func (t *Toggle) RemoveChanged(tok event.Token) { t.changed.Remove(tok) }

func TestListener_FiringDuringAttachIsDelivered(t *testing.T) {
	tg := &Toggle{}
	o := &observer{name: "o"}
	l, err := Subscribe(testDeps(), Options{Target: o, Source: tg, EventName: "Changed", Handler: o.OnClicked, ThrowOnFailure: true})
	require.NoError(t, err)
	assert.Equal(t, StateActive, l.State())
	require.Len(t, o.args, 1)
	assert.Equal(t, 1, o.args[0].X)
	assert.Same(t, tg, o.senders[0])
	assert.Equal(t, uint64(1), l.Dispatched())

	l.Detach()
	tg.changed.Raise(tg, &ClickArgs{X: 2})
	assert.Len(t, o.args, 1)
}

func TestListener_AttachFailureAfterFiring(t *testing.T) {
	type Flaky struct{ name string }
	errFull := errors.New("full")
	c := cache.New()
	r := resolver.New(resolver.WithCache(c))
	require.NoError(t, r.Register(reflect.TypeFor[*Flaky](), "Changed",
		func(f *Flaky, h event.Handler[*ClickArgs]) (event.Token, error) {
			h(f, &ClickArgs{})
			return 0, errFull
		},
		func(f *Flaky, tok event.Token) {},
	))
	deps := Deps{Resolver: r, Synthesizer: delegate.NewSynthesizer(c)}
	f := &Flaky{name: "f"}
	o := &observer{name: "o"}

	l, err := Subscribe(deps, Options{Target: o, Source: f, EventName: "Changed", Handler: o.OnClicked, ThrowOnFailure: true})
	assert.Nil(t, l)
	assert.ErrorIs(t, err, ErrAttachFailed)
	assert.ErrorIs(t, err, errFull)
}

func TestListener_MistypedArgsAreDropped(t *testing.T) {
	btn := &Button{name: "b"}
	o := &observer{name: "o"}
	log := &recordingLogger{}
	deps := testDeps()
	deps.Logger = log
	l, err := Subscribe(deps, Options{Target: o, Source: btn, EventName: "Clicked", Handler: o.OnClicked})
	require.NoError(t, err)

	l.OnEvent(btn, "not click args")
	assert.Empty(t, o.args)
	assert.Zero(t, l.Dispatched())
	require.Len(t, log.warns, 1)
	assert.Contains(t, log.warns[0], "string")
	assert.True(t, l.IsAttached())

	var boxed any = &ClickArgs{X: 3}
	l.OnEvent(btn, boxed)
	l.OnEvent(btn, nil)
	require.Len(t, o.args, 2)
	assert.Equal(t, 3, o.args[0].X)
	assert.Nil(t, o.args[1])
	assert.Equal(t, uint64(2), l.Dispatched())
}

func TestListener_NilArgsRejectedForValueParam(t *testing.T) {
	g := &Gauge{name: "g"}
	o := &observer{name: "o"}
	log := &recordingLogger{}
	deps := testDeps()
	deps.Logger = log
	l, err := Subscribe(deps, Options{Target: o, Source: g, EventName: "Level", Handler: o.OnLevel, ThrowOnFailure: true})
	require.NoError(t, err)

	l.OnEvent(g, nil)
	l.OnEvent(g, 0.5)
	assert.Equal(t, []float64{0.5}, o.levels)
	assert.Len(t, log.warns, 1)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}
