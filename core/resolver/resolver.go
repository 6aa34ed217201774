// Package resolver locates the add and remove accessors of a named event on
// a source type.
//
// Strategies are tried in order: accessors registered explicitly, accessors
// declared on the nominal source type (an Add<Name>/Remove<Name> method pair,
// then an exported <Name> field whose type has Add/Remove methods), the same
// lookup on the runtime type of the source and, for detach only, a best-effort
// scan for methods named like Remove<Name>, Off<Name> or Unsubscribe<Name>.
// The name scan depends on naming conventions and may be disabled; types that
// cannot be matched reliably should register their accessors.
package resolver

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/kilianp07/weakevent/core/cache"
	"github.com/kilianp07/weakevent/core/logger"
)

var (
	// ErrAccessorNotFound means no strategy produced an accessor.
	ErrAccessorNotFound = errors.New("event accessor not found")
	// ErrAccessorPanic wraps panics raised while invoking an accessor.
	ErrAccessorPanic = errors.New("event accessor failed")
	// ErrUnsupportedHandlerShape is returned when no event argument type can
	// be inferred from a handler.
	ErrUnsupportedHandlerShape = errors.New("unsupported handler shape")
	// ErrInvalidRegistration is returned by Register for malformed accessors.
	ErrInvalidRegistration = errors.New("invalid accessor registration")
)

type regKey struct {
	owner reflect.Type
	event string
}

type registration struct {
	attach, detach *Accessor
}

// Resolver resolves and caches event accessors.
type Resolver struct {
	provider Provider
	log      logger.Logger
	pattern  bool

	accessors *cache.Table[*Accessor]
	argTypes  *cache.Table[reflect.Type]

	mu       sync.RWMutex
	explicit map[regKey]registration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithProvider replaces the reflection provider.
func WithProvider(p Provider) Option {
	return func(r *Resolver) { r.provider = p }
}

// WithCache selects the cache resolutions are stored in.
func WithCache(c *cache.ResolverCache) Option {
	return func(r *Resolver) {
		r.accessors = cache.NewTable[*Accessor](c, "accessor")
		r.argTypes = cache.NewTable[reflect.Type](c, "argtype")
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l logger.Logger) Option { return func(r *Resolver) { r.log = logger.OrNop(l) } }

// WithPatternFallback toggles the detach name scan. It is enabled by default.
func WithPatternFallback(enabled bool) Option { return func(r *Resolver) { r.pattern = enabled } }

// New returns a resolver using the process wide cache unless configured
// otherwise. A resolver with a custom provider and no cache gets a private
// cache, since its resolutions differ from the reflect based ones.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		provider: ReflectProvider{},
		log:      logger.Nop{},
		pattern:  true,
		explicit: make(map[regKey]registration),
	}
	for _, o := range opts {
		o(r)
	}
	if r.accessors == nil {
		var c *cache.ResolverCache
		if _, ok := r.provider.(ReflectProvider); !ok {
			c = cache.New()
		}
		WithCache(c)(r)
	}
	return r
}

// Register supplies the accessors of event on owner explicitly. attach must
// be a function taking an owner and a handler function; detach, which may be
// nil, takes an owner and the value attach returned. Method expressions such
// as (*Button).AddClicked fit naturally.
func (r *Resolver) Register(owner reflect.Type, event string, attach, detach any) error {
	if owner == nil || event == "" {
		return fmt.Errorf("%w: owner and event are required", ErrInvalidRegistration)
	}
	av := reflect.ValueOf(attach)
	if err := checkRegistered(owner, av); err != nil {
		return fmt.Errorf("attach %s: %w", event, err)
	}
	if av.Type().In(1).Kind() != reflect.Func {
		return fmt.Errorf("%w: attach %s must take a handler function, got %s", ErrInvalidRegistration, event, av.Type().In(1))
	}
	reg := registration{attach: funcAccessor(owner, av)}
	reg.attach.Event, reg.attach.Kind, reg.attach.Strategy = event, Attach, Registered
	if detach != nil {
		dv := reflect.ValueOf(detach)
		if err := checkRegistered(owner, dv); err != nil {
			return fmt.Errorf("detach %s: %w", event, err)
		}
		if key := reg.attach.ResultType; key != nil && !key.AssignableTo(dv.Type().In(1)) {
			return fmt.Errorf("%w: detach %s takes %s, attach returns %s", ErrInvalidRegistration, event, dv.Type().In(1), key)
		}
		reg.detach = funcAccessor(owner, dv)
		reg.detach.Event, reg.detach.Kind, reg.detach.Strategy = event, Detach, Registered
	}
	r.mu.Lock()
	r.explicit[regKey{owner, event}] = reg
	r.mu.Unlock()
	r.log.Debugf("registered accessors for %s.%s", owner, event)
	return nil
}

func checkRegistered(owner reflect.Type, fn reflect.Value) error {
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return fmt.Errorf("%w: not a function", ErrInvalidRegistration)
	}
	ft := fn.Type()
	if ft.NumIn() != 2 || !owner.AssignableTo(ft.In(0)) {
		return fmt.Errorf("%w: want func(%s, arg), got %s", ErrInvalidRegistration, owner, ft)
	}
	return nil
}

// ResolveAttach finds the add accessor of event. nominal is the declared
// source type and runtime its dynamic type; either may be nil.
func (r *Resolver) ResolveAttach(nominal, runtime reflect.Type, event string) (*Accessor, bool) {
	return r.resolve(Attach, nominal, runtime, event)
}

// ResolveDetach finds the remove accessor of event.
func (r *Resolver) ResolveDetach(nominal, runtime reflect.Type, event string) (*Accessor, bool) {
	return r.resolve(Detach, nominal, runtime, event)
}

func (r *Resolver) resolve(k Kind, nominal, rt reflect.Type, event string) (*Accessor, bool) {
	if nominal == nil {
		nominal = rt
	}
	if nominal == nil || event == "" {
		return nil, false
	}
	if acc := r.registered(k, nominal, rt, event); acc != nil {
		return acc, true
	}
	acc, _ := r.accessors.GetOrAdd(func() (*Accessor, error) {
		return r.lookup(k, nominal, rt, event), nil
	}, k.String(), cache.TypeKey(nominal), cache.TypeKey(rt), event, strconv.FormatBool(r.pattern))
	return acc, acc != nil
}

func (r *Resolver) registered(k Kind, nominal, rt reflect.Type, event string) *Accessor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range []reflect.Type{nominal, rt} {
		if t == nil {
			continue
		}
		if reg, ok := r.explicit[regKey{t, event}]; ok {
			if k == Attach {
				return reg.attach
			}
			return reg.detach
		}
	}
	return nil
}

// lookup runs the reflective strategies. Reflection panics on odd types are
// treated as "not found".
func (r *Resolver) lookup(k Kind, nominal, rt reflect.Type, event string) (acc *Accessor) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Warnf("resolving %s %s on %s panicked: %v", k, event, nominal, p)
			acc = nil
		}
	}()
	if acc = r.declared(k, nominal, event); acc != nil {
		acc.Strategy = Declared
	} else if rt != nil && rt != nominal {
		if acc = r.declared(k, rt, event); acc != nil {
			acc.Strategy = RuntimeType
		}
	}
	if acc == nil && k == Detach && r.pattern {
		acc = r.byPattern(nominal, event)
		if acc == nil && rt != nil && rt != nominal {
			acc = r.byPattern(rt, event)
		}
		if acc != nil {
			acc.Strategy = NamePattern
			r.log.Warnf("detach accessor for %s resolved by name pattern: %s", event, acc.Member)
		}
	}
	if acc == nil {
		r.log.Debugf("no %s accessor for %s on %s (runtime %v)", k, event, nominal, rt)
		return nil
	}
	acc.Event, acc.Kind = event, k
	return acc
}

func (r *Resolver) declared(k Kind, t reflect.Type, event string) *Accessor {
	prefix := "Add"
	if k == Detach {
		prefix = "Remove"
	}
	if m, ok := r.provider.MethodByName(t, prefix+event); ok {
		if acc, ok := methodAccessor(t, m); ok && (k == Detach || acc.HandlerType.Kind() == reflect.Func) {
			return acc
		}
	}
	if t.Kind() == reflect.Interface {
		return nil
	}
	if f, ok := r.provider.FieldByName(t, event); ok {
		if acc, ok := fieldAccessor(t, f, prefix); ok && (k == Detach || acc.HandlerType.Kind() == reflect.Func) {
			return acc
		}
	}
	return nil
}

var detachVerbs = []string{"Remove", "Off", "Unsubscribe"}

func (r *Resolver) byPattern(t reflect.Type, event string) *Accessor {
	for _, m := range r.provider.Methods(t) {
		if !matchesDetach(m.Name, event) {
			continue
		}
		if acc, ok := methodAccessor(t, m); ok {
			return acc
		}
	}
	return nil
}

func matchesDetach(method, event string) bool {
	for _, verb := range detachVerbs {
		if strings.HasSuffix(method, verb+event) || strings.HasSuffix(method, verb+event+"Handler") {
			return true
		}
	}
	return false
}

func funcLabel(fn reflect.Value) string {
	if f := runtime.FuncForPC(fn.Pointer()); f != nil {
		name := f.Name()
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	return fn.Type().String()
}
