// Package weakref provides non-owning references to heap objects.
//
// A Handle never keeps its referent alive. Once the garbage collector has
// reclaimed the referent the handle reports it as dead, and it keeps doing so
// forever: a collected object cannot come back.
package weakref

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"unsafe"
	"weak"
)

var (
	// ErrNotPointer is returned when the referent is not a pointer.
	ErrNotPointer = errors.New("weakref: target must be a non-nil pointer")
	// ErrZeroSized is returned for pointers to zero-sized values, which all
	// share one runtime address and can never be collected.
	ErrZeroSized = errors.New("weakref: target points to a zero-sized value")
)

// Handle is a weak reference to an arbitrary pointer value.
// The zero value and a handle created from nil are empty.
type Handle struct {
	ptr  weak.Pointer[byte]
	typ  reflect.Type
	dead atomic.Bool
}

// New returns a handle to target. A nil target (untyped or typed) yields an
// empty handle, which is how static subscriptions are represented.
func New(target any) (*Handle, error) {
	if target == nil {
		return &Handle{}, nil
	}
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer {
		return nil, fmt.Errorf("%w: got %s", ErrNotPointer, v.Type())
	}
	if v.IsNil() {
		return &Handle{}, nil
	}
	if v.Type().Elem().Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrZeroSized, v.Type())
	}
	return &Handle{
		ptr: weak.Make((*byte)(v.UnsafePointer())),
		typ: v.Type(),
	}, nil
}

// MustNew is like New but panics on error.
func MustNew(target any) *Handle {
	h, err := New(target)
	if err != nil {
		panic(err)
	}
	return h
}

// IsEmpty reports whether the handle was created without a referent.
func (h *Handle) IsEmpty() bool { return h == nil || h.typ == nil }

// Type returns the pointer type of the referent, or nil for empty handles.
func (h *Handle) Type() reflect.Type {
	if h == nil {
		return nil
	}
	return h.typ
}

// IsAlive reports whether the referent has not been collected yet.
func (h *Handle) IsAlive() bool {
	return h.load() != nil
}

// Get returns the referent as the original pointer type, or nil once it has
// been collected. The returned value is a strong reference.
func (h *Handle) Get() any {
	p := h.load()
	if p == nil {
		return nil
	}
	return reflect.NewAt(h.typ.Elem(), p).Interface()
}

// Value is Get as a reflect.Value. The result is invalid when dead.
func (h *Handle) Value() reflect.Value {
	p := h.load()
	if p == nil {
		return reflect.Value{}
	}
	return reflect.NewAt(h.typ.Elem(), p)
}

func (h *Handle) load() unsafe.Pointer {
	if h.IsEmpty() || h.dead.Load() {
		return nil
	}
	b := h.ptr.Value()
	if b == nil {
		h.dead.Store(true)
		return nil
	}
	return unsafe.Pointer(b)
}

// String implements fmt.Stringer.
func (h *Handle) String() string {
	switch {
	case h.IsEmpty():
		return "weakref(<empty>)"
	case h.IsAlive():
		return fmt.Sprintf("weakref(%s)", h.typ)
	default:
		return fmt.Sprintf("weakref(%s, collected)", h.typ)
	}
}
