// Package delegate turns Go callables into open delegates: functions that
// take their receiver as an explicit first argument instead of capturing it.
//
// A method value such as obj.OnClicked captures obj. Holding on to it would
// keep obj alive, which is exactly what weak subscriptions must avoid. The
// Synthesizer therefore identifies the method behind a method value and
// returns the receiver-first reflect.Method.Func for it; the method value
// itself is dropped.
package delegate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"runtime"
	"strings"

	"github.com/kilianp07/weakevent/core/cache"
)

// ErrUnsupportedCallable is returned for callables that cannot be converted
// to an open delegate, most notably function literals.
var ErrUnsupportedCallable = errors.New("unsupported callable")

// Kind tells how an Open delegate is invoked.
type Kind int

const (
	// Instance delegates take the receiver as their first argument.
	Instance Kind = iota
	// Static delegates have no receiver.
	Static
)

func (k Kind) String() string {
	if k == Instance {
		return "instance"
	}
	return "static"
}

// Open is a receiver-explicit callable. It holds no reference to any
// particular instance.
type Open struct {
	Kind Kind
	// Name is the method name for instance delegates and the function
	// symbol for static ones.
	Name string
	// DeclaringType is the receiver type, nil for static delegates.
	DeclaringType reflect.Type
	// In and Out describe the closed shape, receiver excluded.
	In  []reflect.Type
	Out []reflect.Type

	fn reflect.Value
}

// Func returns the underlying function value. For instance delegates the
// receiver is its first parameter.
func (o *Open) Func() reflect.Value { return o.fn }

// ClosedType returns the function type as seen by a caller holding a bound
// receiver, i.e. without the receiver parameter.
func (o *Open) ClosedType() reflect.Type {
	return reflect.FuncOf(o.In, o.Out, false)
}

// Call invokes the delegate. recv is ignored for static delegates.
func (o *Open) Call(recv reflect.Value, args ...reflect.Value) []reflect.Value {
	if o.Kind == Static {
		return o.fn.Call(args)
	}
	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, recv)
	in = append(in, args...)
	return o.fn.Call(in)
}

func (o *Open) String() string {
	if o.Kind == Static {
		return o.Name
	}
	return fmt.Sprintf("(%s).%s", o.DeclaringType, o.Name)
}

// Synthesizer builds and caches open delegates per (type, function) pair.
type Synthesizer struct {
	table *cache.Table[*Open]
}

// NewSynthesizer returns a synthesizer backed by c. A nil cache selects the
// process wide one.
func NewSynthesizer(c *cache.ResolverCache) *Synthesizer {
	return &Synthesizer{table: cache.NewTable[*Open](c, "delegate")}
}

var defaultSynth = NewSynthesizer(nil)

// Default returns the synthesizer bound to the process wide cache.
func Default() *Synthesizer { return defaultSynth }

// Synthesize returns the open form of fn. targetType is the runtime type of
// the object fn is meant to run against, or nil when there is none.
//
// Accepted callables are method values bound to a targetType instance,
// method expressions whose first parameter is targetType, and named
// top-level functions.
func (s *Synthesizer) Synthesize(targetType reflect.Type, fn any) (*Open, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: %T is not a function", ErrUnsupportedCallable, fn)
	}
	if fv.IsNil() {
		return nil, fmt.Errorf("%w: nil function", ErrUnsupportedCallable)
	}
	symbol := FuncName(fn)
	return s.table.GetOrAdd(func() (*Open, error) {
		return synthesize(targetType, fv, symbol)
	}, cache.TypeKey(targetType), cache.TypeKey(fv.Type()), symbol)
}

func synthesize(targetType reflect.Type, fv reflect.Value, symbol string) (*Open, error) {
	ft := fv.Type()
	switch {
	case symbol == "" || strings.HasPrefix(symbol, "reflect."):
		return nil, fmt.Errorf("%w: cannot identify function %q", ErrUnsupportedCallable, symbol)
	case IsClosure(symbol):
		return nil, fmt.Errorf("%w: %s is an anonymous function and captures its defining scope", ErrUnsupportedCallable, symbol)
	case IsMethodValue(symbol):
		if targetType == nil {
			return nil, fmt.Errorf("%w: method value %s needs a target", ErrUnsupportedCallable, symbol)
		}
		return openMethod(targetType, ft, symbol)
	case targetType != nil && ft.NumIn() > 0 && ft.In(0) == targetType:
		// Method expression, e.g. (*T).M: already receiver first.
		return &Open{
			Kind:          Instance,
			Name:          shortName(symbol),
			DeclaringType: targetType,
			In:            params(ft, 1),
			Out:           results(ft),
			fn:            fv,
		}, nil
	default:
		return &Open{
			Kind: Static,
			Name: symbol,
			In:   params(ft, 0),
			Out:  results(ft),
			fn:   fv,
		}, nil
	}
}

func openMethod(targetType, closed reflect.Type, symbol string) (*Open, error) {
	name := shortName(strings.TrimSuffix(symbol, methodValueSuffix))
	m, ok := targetType.MethodByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no exported method %s", ErrUnsupportedCallable, targetType, name)
	}
	open := params(m.Type, 1)
	if !sameTypes(open, params(closed, 0)) || !sameTypes(results(m.Type), results(closed)) {
		return nil, fmt.Errorf("%w: %s.%s has signature %s, method value is %s",
			ErrUnsupportedCallable, targetType, name, m.Type, closed)
	}
	return &Open{
		Kind:          Instance,
		Name:          name,
		DeclaringType: targetType,
		In:            open,
		Out:           results(m.Type),
		fn:            m.Func,
	}, nil
}

const methodValueSuffix = "-fm"

// closureRe matches the compiler symbols of function literals and
// range-over-func bodies: pkg.F.func1, pkg.glob..func2, pkg.F.func1.2,
// pkg.F-range1.
var closureRe = regexp.MustCompile(`(\.func\d+|-range\d+)(\.|$)`)

// IsClosure reports whether symbol names a function literal.
func IsClosure(symbol string) bool {
	return closureRe.MatchString(lastSegment(symbol))
}

// IsMethodValue reports whether symbol names a method value wrapper.
func IsMethodValue(symbol string) bool {
	return strings.HasSuffix(symbol, methodValueSuffix)
}

// FuncName returns the runtime symbol of fn, or "" if fn is not a function.
func FuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return ""
	}
	return f.Name()
}

// lastSegment drops the import path so dots in domain names do not count.
func lastSegment(symbol string) string {
	if i := strings.LastIndexByte(symbol, '/'); i >= 0 {
		return symbol[i+1:]
	}
	return symbol
}

// shortName returns the identifier after the last dot. Method names never
// contain dots, while generic receivers such as (*Box[...]) do.
func shortName(symbol string) string {
	if i := strings.LastIndexByte(symbol, '.'); i >= 0 {
		return symbol[i+1:]
	}
	return symbol
}

func params(t reflect.Type, skip int) []reflect.Type {
	out := make([]reflect.Type, 0, t.NumIn()-skip)
	for i := skip; i < t.NumIn(); i++ {
		out = append(out, t.In(i))
	}
	return out
}

func results(t reflect.Type) []reflect.Type {
	out := make([]reflect.Type, 0, t.NumOut())
	for i := 0; i < t.NumOut(); i++ {
		out = append(out, t.Out(i))
	}
	return out
}

func sameTypes(a, b []reflect.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
