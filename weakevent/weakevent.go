// Package weakevent is the entry point of the weak event engine. It infers
// argument and source types from the values handed to it and subscribes
// self-detaching listeners that never keep their target alive.
//
//	btn := &Button{}
//	view := &View{}
//	l, err := weakevent.Subscribe(view, btn, "Clicked", view.OnClicked)
//
// Once view is unreachable and collected, the next Clicked firing removes
// the listener from btn.
package weakevent

import (
	"errors"
	"reflect"
	"sync"

	"github.com/kilianp07/weakevent/core/cache"
	"github.com/kilianp07/weakevent/core/delegate"
	"github.com/kilianp07/weakevent/core/event"
	"github.com/kilianp07/weakevent/core/events"
	"github.com/kilianp07/weakevent/core/listener"
	"github.com/kilianp07/weakevent/core/logger"
	"github.com/kilianp07/weakevent/core/resolver"
	"github.com/kilianp07/weakevent/core/weakfunc"
	"github.com/kilianp07/weakevent/internal/eventbus"
)

type (
	Listener = listener.Listener
	State    = listener.State
)

const (
	StateConstructing = listener.StateConstructing
	StateSubscribing  = listener.StateSubscribing
	StateActive       = listener.StateActive
	StateDetaching    = listener.StateDetaching
	StateDetached     = listener.StateDetached
	StateFailed       = listener.StateFailed
)

var (
	ErrStaticToStatic          = listener.ErrStaticToStatic
	ErrNilSource               = listener.ErrNilSource
	ErrIncompatibleHandler     = listener.ErrIncompatibleHandler
	ErrAccessorNotFound        = listener.ErrAccessorNotFound
	ErrUnsupportedHandlerShape = listener.ErrUnsupportedHandlerShape
	ErrUnsupportedCallable     = listener.ErrUnsupportedCallable
)

// Engine owns the resolver cache and everything resolved through it.
type Engine struct {
	cache    *cache.ResolverCache
	resolver *resolver.Resolver
	synth    *delegate.Synthesizer
	log      logger.Logger
	bus      *eventbus.TypedBus[events.Lifecycle]
	shapes   *cache.Table[reflect.Type]
}

type engineConfig struct {
	cache   *cache.ResolverCache
	log     logger.Logger
	bus     *eventbus.TypedBus[events.Lifecycle]
	pattern bool
}

// Option configures an Engine.
type Option func(*engineConfig)

// WithCache selects the resolver cache. The default is the process wide one.
func WithCache(c *cache.ResolverCache) Option { return func(c2 *engineConfig) { c2.cache = c } }

// WithLogger sets the diagnostics logger.
func WithLogger(l logger.Logger) Option { return func(c *engineConfig) { c.log = l } }

// WithLifecycle publishes listener lifecycle events to bus.
func WithLifecycle(bus *eventbus.TypedBus[events.Lifecycle]) Option {
	return func(c *engineConfig) { c.bus = bus }
}

// WithPatternFallback toggles the best-effort detach name scan.
func WithPatternFallback(enabled bool) Option { return func(c *engineConfig) { c.pattern = enabled } }

// NewEngine builds an engine.
func NewEngine(opts ...Option) *Engine {
	cfg := engineConfig{pattern: true}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.cache == nil {
		cfg.cache = cache.Default()
	}
	log := logger.OrNop(cfg.log)
	return &Engine{
		cache: cfg.cache,
		resolver: resolver.New(
			resolver.WithCache(cfg.cache),
			resolver.WithLogger(log),
			resolver.WithPatternFallback(cfg.pattern),
		),
		synth:  delegate.NewSynthesizer(cfg.cache),
		log:    log,
		bus:    cfg.bus,
		shapes: cache.NewTable[reflect.Type](cfg.cache, "shape"),
	}
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default returns the process engine used by the package level functions.
func Default() *Engine {
	defaultOnce.Do(func() { defaultEngine = NewEngine() })
	return defaultEngine
}

// Resolver exposes the resolver, e.g. to register accessors.
func (e *Engine) Resolver() *resolver.Resolver { return e.resolver }

// Cache exposes the resolver cache.
func (e *Engine) Cache() *cache.ResolverCache { return e.cache }

// Lifecycle returns the lifecycle bus, nil when none was configured.
func (e *Engine) Lifecycle() *eventbus.TypedBus[events.Lifecycle] { return e.bus }

func (e *Engine) deps() listener.Deps {
	d := listener.Deps{Resolver: e.resolver, Synthesizer: e.synth, Logger: e.log}
	if e.bus != nil {
		d.Lifecycle = e.bus
	}
	return d
}

// SubscribeOption tweaks a single subscription.
type SubscribeOption func(*listener.Options)

// StaticSource holds the source strongly, for sources that live as long as
// the process.
func StaticSource() SubscribeOption {
	return func(o *listener.Options) { o.StaticSource = true }
}

// SourceType resolves the event on t instead of the dynamic source type.
func SourceType(t reflect.Type) SubscribeOption {
	return func(o *listener.Options) { o.SourceType = t }
}

// ArgsType pins the event argument type.
func ArgsType(t reflect.Type) SubscribeOption {
	return func(o *listener.Options) { o.ArgsType = t }
}

// ThrowOnFailure controls whether an unresolvable event is an error.
// Subscribe defaults to true.
func ThrowOnFailure(v bool) SubscribeOption {
	return func(o *listener.Options) { o.ThrowOnFailure = v }
}

// Subscribe attaches handler, bound to target, to event on source. A nil
// target subscribes a static handler. Failing to resolve the event is an
// error unless ThrowOnFailure(false) is given.
func (e *Engine) Subscribe(target, source any, eventName string, handler any, opts ...SubscribeOption) (*Listener, error) {
	o := listener.Options{
		Target:         target,
		Source:         source,
		EventName:      eventName,
		Handler:        handler,
		ThrowOnFailure: true,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.ArgsType == nil && source != nil && handler != nil {
		t, err := e.inferShape(o)
		if err != nil {
			if errors.Is(err, ErrAccessorNotFound) && !o.ThrowOnFailure {
				e.log.Warnf("weak subscription to %s on %T skipped: %v", eventName, source, err)
				return nil, nil
			}
			return nil, err
		}
		o.ArgsType = t
	}
	return listener.Subscribe(e.deps(), o)
}

// TrySubscribe is Subscribe with ThrowOnFailure(false): an event that
// cannot be resolved or attached is reported as false instead of an error.
// Configuration errors are still returned.
func (e *Engine) TrySubscribe(target, source any, eventName string, handler any, opts ...SubscribeOption) (*Listener, bool, error) {
	l, err := e.Subscribe(target, source, eventName, handler, with(opts, ThrowOnFailure(false))...)
	if err != nil {
		return nil, false, err
	}
	return l, l != nil, nil
}

// with returns opts followed by extra without touching the caller's
// backing array.
func with(opts []SubscribeOption, extra ...SubscribeOption) []SubscribeOption {
	out := make([]SubscribeOption, 0, len(opts)+len(extra))
	out = append(out, opts...)
	return append(out, extra...)
}

// SubscribeStatic attaches handler to an event of a process-lifetime source.
func (e *Engine) SubscribeStatic(target, source any, eventName string, handler any, opts ...SubscribeOption) (*Listener, error) {
	return e.Subscribe(target, source, eventName, handler, with(opts, StaticSource())...)
}

// SubscribeToWeakPropertyChangedEvent attaches handler to the
// PropertyChanged event of source.
func (e *Engine) SubscribeToWeakPropertyChangedEvent(target, source any, handler any) (*Listener, error) {
	return e.Subscribe(target, source, "PropertyChanged", handler,
		ArgsType(reflect.TypeFor[*event.PropertyChangedArgs]()))
}

// SubscribeToWeakCollectionChangedEvent attaches handler to the
// CollectionChanged event of source.
func (e *Engine) SubscribeToWeakCollectionChangedEvent(target, source any, handler any) (*Listener, error) {
	return e.Subscribe(target, source, "CollectionChanged", handler,
		ArgsType(reflect.TypeFor[*event.CollectionChangedArgs]()))
}

// InferArgsType reports the event argument type a subscription of handler
// to eventName on source would use.
func (e *Engine) InferArgsType(target, source any, eventName string, handler any) (reflect.Type, error) {
	return e.inferShape(listener.Options{Target: target, Source: source, EventName: eventName, Handler: handler})
}

// inferShape returns the argument type for a subscription, cached per
// target type, source type, handler type and event name.
func (e *Engine) inferShape(o listener.Options) (reflect.Type, error) {
	targetType := reflect.TypeOf(o.Target)
	sourceType := o.SourceType
	if sourceType == nil {
		sourceType = reflect.TypeOf(o.Source)
	}
	handlerType := reflect.TypeOf(o.Handler)
	return e.shapes.GetOrAdd(func() (reflect.Type, error) {
		ht := handlerType
		if ht.Kind() == reflect.Func && targetType != nil && ht.NumIn() > 0 && ht.In(0) == targetType {
			open, err := e.synth.Synthesize(targetType, o.Handler)
			if err != nil {
				return nil, err
			}
			if open.Kind == delegate.Instance {
				ht = open.ClosedType()
			}
		}
		return e.resolver.InferEventArgsType(ht, sourceType, o.EventName)
	}, cache.TypeKey(targetType), cache.TypeKey(sourceType), cache.TypeKey(handlerType), o.EventName)
}

// SubscribeToWeakGenericEvent attaches handler to an event whose arguments
// are of type A. A nil engine selects Default.
func SubscribeToWeakGenericEvent[A any](e *Engine, target, source any, eventName string, handler any, opts ...SubscribeOption) (*Listener, error) {
	if e == nil {
		e = Default()
	}
	return e.Subscribe(target, source, eventName, handler, with(opts, ArgsType(reflect.TypeFor[A]()))...)
}

// Subscribe uses the Default engine.
func Subscribe(target, source any, eventName string, handler any, opts ...SubscribeOption) (*Listener, error) {
	return Default().Subscribe(target, source, eventName, handler, opts...)
}

// TrySubscribe uses the Default engine.
func TrySubscribe(target, source any, eventName string, handler any, opts ...SubscribeOption) (*Listener, bool, error) {
	return Default().TrySubscribe(target, source, eventName, handler, opts...)
}

// SubscribeStatic uses the Default engine.
func SubscribeStatic(target, source any, eventName string, handler any, opts ...SubscribeOption) (*Listener, error) {
	return Default().SubscribeStatic(target, source, eventName, handler, opts...)
}

// SubscribeToWeakPropertyChangedEvent uses the Default engine.
func SubscribeToWeakPropertyChangedEvent(target, source any, handler any) (*Listener, error) {
	return Default().SubscribeToWeakPropertyChangedEvent(target, source, handler)
}

// SubscribeToWeakCollectionChangedEvent uses the Default engine.
func SubscribeToWeakCollectionChangedEvent(target, source any, handler any) (*Listener, error) {
	return Default().SubscribeToWeakCollectionChangedEvent(target, source, handler)
}

// NewAction wraps fn, a method value of target or a named function, so that
// it no longer runs once target is collected.
func NewAction(target any, fn func()) (*weakfunc.Action, error) {
	return weakfunc.NewAction(target, fn)
}

// NewActionOf is NewAction for single argument callables.
func NewActionOf[T any](target any, fn func(T)) (*weakfunc.ActionOf[T], error) {
	return weakfunc.NewActionOf(target, fn)
}

// NewFunc wraps fn, which returns a result.
func NewFunc[R any](target any, fn func() R) (*weakfunc.Func[R], error) {
	return weakfunc.NewFunc(target, fn)
}

// NewFuncOf is NewFunc for single argument callables.
func NewFuncOf[T, R any](target any, fn func(T) R) (*weakfunc.FuncOf[T, R], error) {
	return weakfunc.NewFuncOf(target, fn)
}
