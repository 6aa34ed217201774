// Package weakfunc wraps callables so that invoking them does not keep their
// target alive.
//
// Constructors accept a method value bound to target (target.OnSaved), a
// method expression ((*T).OnSaved) or, for a nil target, a named function.
// Function literals are rejected: they capture their scope by reference and
// cannot be detached from it.
//
// Execute reports whether the call happened. The first time the target is
// found collected the wrapper disables itself for good.
package weakfunc

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/kilianp07/weakevent/core/delegate"
	"github.com/kilianp07/weakevent/core/weakref"
)

// ErrUnsupportedCallable is returned when the callable cannot be wrapped.
var ErrUnsupportedCallable = delegate.ErrUnsupportedCallable

type base struct {
	target *weakref.Handle
	open   *delegate.Open
	died   atomic.Bool
}

func newBase(target any, fn any) (*base, error) {
	h, err := weakref.New(target)
	if err != nil {
		return nil, err
	}
	open, err := delegate.Default().Synthesize(h.Type(), fn)
	if err != nil {
		return nil, err
	}
	if open.Kind == delegate.Instance && h.IsEmpty() {
		return nil, fmt.Errorf("%w: %s needs a target", ErrUnsupportedCallable, open)
	}
	return &base{target: h, open: open}, nil
}

// receiver returns the live target. ok is false once the target has been
// collected, after which it stays false without looking again.
func (b *base) receiver() (reflect.Value, bool) {
	if b.died.Load() {
		return reflect.Value{}, false
	}
	if b.target.IsEmpty() {
		return reflect.Value{}, true
	}
	recv := b.target.Value()
	if !recv.IsValid() {
		b.died.Store(true)
		return reflect.Value{}, false
	}
	return recv, true
}

func (b *base) invoke(args ...reflect.Value) ([]reflect.Value, bool) {
	recv, ok := b.receiver()
	if !ok {
		return nil, false
	}
	return b.open.Call(recv, args...), true
}

// IsAlive reports whether the target is still reachable. Static wrappers
// are always alive.
func (b *base) IsAlive() bool {
	_, ok := b.receiver()
	return ok
}

// IsStatic reports whether the wrapper has no target.
func (b *base) IsStatic() bool { return b.target.IsEmpty() }

// Name returns the wrapped method or function name.
func (b *base) Name() string { return b.open.Name }

// Target returns the target if it is still alive.
func (b *base) Target() any {
	if b.died.Load() {
		return nil
	}
	return b.target.Get()
}

// Action is a weak func().
type Action struct{ *base }

// NewAction wraps fn, which runs against target.
func NewAction(target any, fn func()) (*Action, error) {
	b, err := newBase(target, fn)
	if err != nil {
		return nil, err
	}
	return &Action{b}, nil
}

// Execute calls the action if the target is alive.
func (a *Action) Execute() bool {
	_, ok := a.invoke()
	return ok
}

// ActionOf is a weak func(T).
type ActionOf[T any] struct{ *base }

// NewActionOf wraps fn, which runs against target.
func NewActionOf[T any](target any, fn func(T)) (*ActionOf[T], error) {
	b, err := newBase(target, fn)
	if err != nil {
		return nil, err
	}
	return &ActionOf[T]{b}, nil
}

// Execute calls the action with arg if the target is alive.
func (a *ActionOf[T]) Execute(arg T) bool {
	_, ok := a.invoke(valueOf(arg))
	return ok
}

// Func is a weak func() R.
type Func[R any] struct{ *base }

// NewFunc wraps fn, which runs against target.
func NewFunc[R any](target any, fn func() R) (*Func[R], error) {
	b, err := newBase(target, fn)
	if err != nil {
		return nil, err
	}
	return &Func[R]{b}, nil
}

// Execute calls the function if the target is alive. The result is the
// zero value when ok is false.
func (f *Func[R]) Execute() (result R, ok bool) {
	out, ok := f.invoke()
	if !ok {
		return result, false
	}
	return resultOf[R](out[0]), true
}

// FuncOf is a weak func(T) R.
type FuncOf[T, R any] struct{ *base }

// NewFuncOf wraps fn, which runs against target.
func NewFuncOf[T, R any](target any, fn func(T) R) (*FuncOf[T, R], error) {
	b, err := newBase(target, fn)
	if err != nil {
		return nil, err
	}
	return &FuncOf[T, R]{b}, nil
}

// Execute calls the function with arg if the target is alive.
func (f *FuncOf[T, R]) Execute(arg T) (result R, ok bool) {
	out, ok := f.invoke(valueOf(arg))
	if !ok {
		return result, false
	}
	return resultOf[R](out[0]), true
}

// valueOf keeps the static type of v, so nil interfaces still produce a
// valid argument.
func valueOf[T any](v T) reflect.Value {
	return reflect.ValueOf(&v).Elem()
}

func resultOf[R any](v reflect.Value) R {
	if r, ok := v.Interface().(R); ok {
		return r
	}
	var zero R
	return zero
}
