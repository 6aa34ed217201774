// Package listener implements self-detaching weak event subscriptions.
//
// A Listener sits between an event source and a target object. The source
// holds a handler that calls into the listener, never into the target, and
// the listener holds the target (and, unless the event is static, the
// source) through weak handles. When an event fires after the target has
// been collected the listener removes itself from the source.
package listener

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/weakevent/core/delegate"
	"github.com/kilianp07/weakevent/core/events"
	"github.com/kilianp07/weakevent/core/logger"
	"github.com/kilianp07/weakevent/core/resolver"
	"github.com/kilianp07/weakevent/core/weakref"
	"github.com/kilianp07/weakevent/internal/eventbus"
)

var (
	// ErrStaticToStatic rejects subscriptions with neither a target nor a
	// weakly held source: nothing would benefit from weak wrapping.
	ErrStaticToStatic = errors.New("static handler on a static event needs no weak listener")
	// ErrNilSource is returned when no event source is given.
	ErrNilSource = errors.New("event source is required")
	// ErrInvalidOptions reports missing or inconsistent options.
	ErrInvalidOptions = errors.New("invalid listener options")
	// ErrIncompatibleHandler is returned when the handler cannot receive
	// the arguments the event passes.
	ErrIncompatibleHandler = errors.New("handler is incompatible with event")
	// ErrAttachFailed wraps errors returned by the attach accessor.
	ErrAttachFailed = errors.New("attaching to event failed")

	ErrAccessorNotFound        = resolver.ErrAccessorNotFound
	ErrUnsupportedHandlerShape = resolver.ErrUnsupportedHandlerShape
	ErrUnsupportedCallable     = delegate.ErrUnsupportedCallable
)

// State is the listener lifecycle state.
type State int32

const (
	StateConstructing State = iota
	StateSubscribing
	StateActive
	StateDetaching
	StateDetached
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateDetaching:
		return "detaching"
	case StateDetached:
		return "detached"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Deps are the collaborators a listener needs. Zero fields get defaults:
// a resolver and synthesizer on the process cache, a no-op logger and no
// lifecycle publishing.
type Deps struct {
	Resolver    *resolver.Resolver
	Synthesizer *delegate.Synthesizer
	Logger      logger.Logger
	Lifecycle   eventbus.Publisher[events.Lifecycle]
}

var defaultResolver = resolver.New()

func (d Deps) withDefaults() Deps {
	if d.Resolver == nil {
		d.Resolver = defaultResolver
	}
	if d.Synthesizer == nil {
		d.Synthesizer = delegate.Default()
	}
	d.Logger = logger.OrNop(d.Logger)
	return d
}

func (d Deps) publish(e events.Lifecycle) {
	if d.Lifecycle != nil {
		d.Lifecycle.Publish(e)
	}
}

// Options describe a subscription.
type Options struct {
	// Target is the object the handler runs against. Nil for static
	// handlers.
	Target any
	// Source raises the event. It is held weakly unless StaticSource is set.
	Source any
	// EventName names the event on the source.
	EventName string
	// Handler is a method value bound to Target, a method expression of
	// Target's type or a named function. It takes (sender, args) or nothing.
	Handler any
	// StaticSource marks Source as living for the whole process; it is held
	// strongly and never checked for liveness.
	StaticSource bool
	// SourceType overrides the nominal source type, e.g. an interface the
	// event is declared on. Defaults to the runtime type of Source.
	SourceType reflect.Type
	// ArgsType pins the event argument type. Inferred when nil.
	ArgsType reflect.Type
	// ThrowOnFailure makes an unresolvable event an error. Otherwise the
	// failure is logged and Subscribe returns a nil listener and nil error.
	ThrowOnFailure bool
}

// Listener is one weak subscription.
type Listener struct {
	id        string
	eventName string
	deps      Deps

	target       *weakref.Handle
	source       *weakref.Handle
	staticSource reflect.Value
	sourceType   reflect.Type
	runtimeType  reflect.Type
	argsType     reflect.Type

	dispatch dispatcher
	attach   *resolver.Accessor
	results  []reflect.Value

	// key is known once the attach accessor returns. A detach requested
	// before that is parked in pending and completed by Subscribe.
	mu      sync.Mutex
	key     reflect.Value
	keyed   bool
	pending events.DetachReason

	state      atomic.Int32
	dispatched atomic.Uint64
}

// Subscribe validates opts, resolves the event and attaches a new listener.
//
// Configuration errors (no source, static to static, unsupported handler,
// incompatible arguments) are always returned. Failing to resolve or invoke
// the attach accessor is returned only with ThrowOnFailure; otherwise it is
// logged and Subscribe returns (nil, nil).
func Subscribe(deps Deps, opts Options) (*Listener, error) {
	deps = deps.withDefaults()
	l := &Listener{id: uuid.NewString(), eventName: opts.EventName, deps: deps}
	l.setState(StateConstructing)
	if err := l.construct(opts); err != nil {
		l.setState(StateFailed)
		deps.Logger.Errorf("weak listener for %q: %v", opts.EventName, err)
		return nil, err
	}

	l.setState(StateSubscribing)
	if err := l.subscribe(); err != nil {
		l.setState(StateFailed)
		deps.publish(events.SubscribeFailed{Event: l.eventName, SourceType: typeName(l.sourceType), Err: err, Time: time.Now()})
		if errors.Is(err, ErrIncompatibleHandler) || errors.Is(err, ErrUnsupportedHandlerShape) {
			deps.Logger.Errorf("weak listener %s: %v", l.id, err)
			return nil, err
		}
		if opts.ThrowOnFailure {
			deps.Logger.Errorf("weak listener %s: %v", l.id, err)
			return nil, err
		}
		deps.Logger.Warnf("weak listener %s not attached: %v", l.id, err)
		return nil, nil
	}

	deps.Logger.Debugw("weak listener attached", map[string]any{
		"listener": l.id,
		"event":    l.eventName,
		"source":   typeName(l.sourceType),
		"target":   typeName(l.target.Type()),
		"strategy": l.attach.Strategy.String(),
		"dispatch": l.dispatch.kind.String(),
	})
	deps.publish(events.Subscribed{
		ListenerID: l.id,
		Event:      l.eventName,
		TargetType: typeName(l.target.Type()),
		SourceType: typeName(l.sourceType),
		Strategy:   l.attach.Strategy.String(),
		Time:       time.Now(),
	})
	l.mu.Lock()
	pending := l.pending
	l.mu.Unlock()
	if pending != "" {
		l.remove(pending)
	}
	return l, nil
}

func (l *Listener) construct(opts Options) error {
	if opts.EventName == "" {
		return fmt.Errorf("%w: event name is required", ErrInvalidOptions)
	}
	if opts.Handler == nil {
		return fmt.Errorf("%w: handler is required", ErrInvalidOptions)
	}
	targetless := isNil(opts.Target)
	if isNil(opts.Source) {
		if targetless {
			return ErrStaticToStatic
		}
		return ErrNilSource
	}
	if targetless && opts.StaticSource {
		return ErrStaticToStatic
	}

	target, err := weakref.New(opts.Target)
	if err != nil {
		return fmt.Errorf("%w: target: %w", ErrInvalidOptions, err)
	}
	l.target = target

	l.runtimeType = reflect.TypeOf(opts.Source)
	if opts.StaticSource {
		l.staticSource = reflect.ValueOf(opts.Source)
	} else {
		source, err := weakref.New(opts.Source)
		if err != nil {
			return fmt.Errorf("%w: source: %w", ErrInvalidOptions, err)
		}
		l.source = source
	}
	l.sourceType = l.runtimeType
	if opts.SourceType != nil {
		if !l.runtimeType.AssignableTo(opts.SourceType) {
			return fmt.Errorf("%w: source %s is not a %s", ErrInvalidOptions, l.runtimeType, opts.SourceType)
		}
		l.sourceType = opts.SourceType
	}

	open, err := l.deps.Synthesizer.Synthesize(target.Type(), opts.Handler)
	if err != nil {
		return err
	}
	d, err := newDispatcher(open, target.IsEmpty())
	if err != nil {
		return err
	}
	l.dispatch = d

	l.argsType = opts.ArgsType
	if l.argsType == nil && d.withArgs() {
		ht := reflect.TypeOf(opts.Handler)
		if open.Kind == delegate.Instance && ht.NumIn() == len(open.In)+1 {
			ht = open.ClosedType()
		}
		if l.argsType, err = l.deps.Resolver.InferEventArgsType(ht, l.sourceType, l.eventName); err != nil {
			return err
		}
	}
	if d.withArgs() && !l.argsType.AssignableTo(d.argsParam()) {
		return fmt.Errorf("%w: %s does not accept %s", ErrIncompatibleHandler, open, l.argsType)
	}
	return nil
}

func (l *Listener) subscribe() error {
	acc, ok := l.deps.Resolver.ResolveAttach(l.sourceType, l.runtimeType, l.eventName)
	if !ok {
		return fmt.Errorf("%w: no add accessor for %s on %s", ErrAccessorNotFound, l.eventName, l.sourceType)
	}
	if acc.HandlerType.Kind() != reflect.Func {
		return fmt.Errorf("%w: %s takes %s", ErrUnsupportedHandlerShape, acc, acc.HandlerType)
	}
	evArgs, err := resolver.ArgsOf(acc.HandlerType)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncompatibleHandler, err)
	}
	if evArgs != resolver.NoArgs {
		if l.argsType != nil && l.argsType != resolver.NoArgs && !evArgs.AssignableTo(l.argsType) {
			return fmt.Errorf("%w: %s passes %s, expected %s", ErrIncompatibleHandler, l.eventName, evArgs, l.argsType)
		}
		if l.dispatch.withArgs() && !assignableOrInterface(evArgs, l.dispatch.argsParam()) {
			return fmt.Errorf("%w: %s passes %s, handler takes %s", ErrIncompatibleHandler, l.eventName, evArgs, l.dispatch.argsParam())
		}
	}

	ht := acc.HandlerType
	l.results = make([]reflect.Value, ht.NumOut())
	for i := range l.results {
		l.results[i] = reflect.Zero(ht.Out(i))
	}
	handler := reflect.MakeFunc(ht, l.handle)

	// Sources may raise the event from inside the add accessor, so the
	// listener is live before it is handed over.
	l.attach = acc
	l.setState(StateActive)
	key, err := acc.Invoke(l.sourceValue(), handler)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAttachFailed, err)
	}
	l.mu.Lock()
	l.key = key
	l.keyed = true
	l.mu.Unlock()
	return nil
}

// handle is the body of the synthetic handler given to the source. It
// closes over the listener only.
func (l *Listener) handle(in []reflect.Value) []reflect.Value {
	var sender, args reflect.Value
	switch len(in) {
	case 2:
		sender, args = in[0], in[1]
	case 1:
		args = in[0]
	case 0:
		if l.dispatch.withArgs() {
			args = reflect.Zero(l.dispatch.argsParam())
		}
	}
	if !sender.IsValid() {
		sender = l.sourceValue()
	}
	l.onEvent(sender, args)
	return l.results
}

// OnEvent forwards one firing as if the source had raised it.
func (l *Listener) OnEvent(sender, args any) {
	l.onEvent(reflect.ValueOf(sender), reflect.ValueOf(args))
}

func (l *Listener) onEvent(sender, args reflect.Value) {
	if l.State() != StateActive {
		return
	}
	if !l.dispatch.accepts(args) {
		l.deps.Logger.Warnf("weak listener %s: %s firing with %s dropped, handler takes %s",
			l.id, l.eventName, valueType(args), l.dispatch.argsParam())
		return
	}
	var recv reflect.Value
	if !l.target.IsEmpty() {
		if recv = l.target.Value(); !recv.IsValid() {
			l.detach(events.ReasonTargetCollected)
			return
		}
	}
	if l.source != nil && !l.source.IsAlive() {
		l.detach(events.ReasonSourceCollected)
		return
	}
	start := time.Now()
	l.dispatch.call(recv, sender, args)
	l.dispatched.Add(1)
	l.deps.publish(events.Dispatched{ListenerID: l.id, Event: l.eventName, Latency: time.Since(start)})
}

// Detach removes the listener from its source. It is idempotent and never
// fails: remove accessor errors are logged.
func (l *Listener) Detach() {
	l.detach(events.ReasonExplicit)
}

func (l *Listener) detach(reason events.DetachReason) {
	if !l.state.CompareAndSwap(int32(StateActive), int32(StateDetaching)) {
		return
	}
	l.mu.Lock()
	if !l.keyed {
		l.pending = reason
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	l.remove(reason)
}

func (l *Listener) remove(reason events.DetachReason) {
	var err error
	if src := l.sourceValue(); src.IsValid() {
		if acc, ok := l.deps.Resolver.ResolveDetach(l.sourceType, l.runtimeType, l.eventName); ok {
			_, err = acc.Invoke(src, l.key)
		} else {
			err = fmt.Errorf("%w: no remove accessor for %s on %s", ErrAccessorNotFound, l.eventName, l.sourceType)
		}
		if err != nil {
			l.deps.Logger.Warnf("weak listener %s: detach from %s failed: %v", l.id, l.eventName, err)
		}
	} else {
		l.deps.Logger.Debugf("weak listener %s: source of %s already collected", l.id, l.eventName)
	}
	l.setState(StateDetached)
	l.deps.Logger.Debugf("weak listener %s detached from %s (%s)", l.id, l.eventName, reason)
	l.deps.publish(events.Detached{ListenerID: l.id, Event: l.eventName, Reason: reason, Err: err, Time: time.Now()})
}

func (l *Listener) sourceValue() reflect.Value {
	if l.staticSource.IsValid() {
		return l.staticSource
	}
	return l.source.Value()
}

func (l *Listener) setState(s State) { l.state.Store(int32(s)) }

// ID returns the listener identifier used in logs and lifecycle events.
func (l *Listener) ID() string { return l.id }

// EventName returns the subscribed event name.
func (l *Listener) EventName() string { return l.eventName }

// State returns the current lifecycle state.
func (l *Listener) State() State { return State(l.state.Load()) }

// IsAttached reports whether the listener still forwards events.
func (l *Listener) IsAttached() bool { return l.State() == StateActive }

// IsStaticHandler reports whether the handler has no target.
func (l *Listener) IsStaticHandler() bool { return l.target.IsEmpty() }

// IsStaticEvent reports whether the source is held strongly.
func (l *Listener) IsStaticEvent() bool { return l.staticSource.IsValid() }

// IsTargetAlive reports whether the target is still reachable. Static
// handlers are always alive.
func (l *Listener) IsTargetAlive() bool { return l.target.IsEmpty() || l.target.IsAlive() }

// Target returns the target while it is alive.
func (l *Listener) Target() any { return l.target.Get() }

// Source returns the source while it is alive.
func (l *Listener) Source() any {
	if v := l.sourceValue(); v.IsValid() {
		return v.Interface()
	}
	return nil
}

// ArgsType returns the event argument type, nil for argument-less handlers
// whose type was not pinned.
func (l *Listener) ArgsType() reflect.Type { return l.argsType }

// Strategy returns how the attach accessor was resolved.
func (l *Listener) Strategy() resolver.Strategy { return l.attach.Strategy }

// Dispatched returns how many firings were forwarded.
func (l *Listener) Dispatched() uint64 { return l.dispatched.Load() }

func (l *Listener) String() string {
	return fmt.Sprintf("listener(%s %s on %s, %s)", l.id, l.eventName, typeName(l.sourceType), l.State())
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func typeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}

func valueType(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	return v.Type().String()
}

func assignableOrInterface(from, to reflect.Type) bool {
	return from.AssignableTo(to) || from.Kind() == reflect.Interface
}
