package listener

import (
	"fmt"
	"reflect"

	"github.com/kilianp07/weakevent/core/delegate"
)

type dispatchKind int

const (
	instanceWithArgs dispatchKind = iota
	instanceNoArgs
	staticWithArgs
	staticNoArgs
)

func (k dispatchKind) String() string {
	switch k {
	case instanceWithArgs:
		return "instance_with_args"
	case instanceNoArgs:
		return "instance_no_args"
	case staticWithArgs:
		return "static_with_args"
	default:
		return "static_no_args"
	}
}

// dispatcher forwards one firing to the consumer handler. The variant is
// fixed at construction from the handler shape.
type dispatcher struct {
	kind dispatchKind
	open *delegate.Open
}

func newDispatcher(open *delegate.Open, targetless bool) (dispatcher, error) {
	if open.Kind == delegate.Instance && targetless {
		return dispatcher{}, fmt.Errorf("%w: %s needs a target", ErrUnsupportedCallable, open)
	}
	var withArgs bool
	switch len(open.In) {
	case 2:
		withArgs = true
	case 0:
	default:
		return dispatcher{}, fmt.Errorf("%w: %s must take (sender, args) or nothing", ErrUnsupportedHandlerShape, open)
	}
	d := dispatcher{open: open}
	switch {
	case open.Kind == delegate.Instance && withArgs:
		d.kind = instanceWithArgs
	case open.Kind == delegate.Instance:
		d.kind = instanceNoArgs
	case withArgs:
		d.kind = staticWithArgs
	default:
		d.kind = staticNoArgs
	}
	return d, nil
}

func (d dispatcher) withArgs() bool {
	return d.kind == instanceWithArgs || d.kind == staticWithArgs
}

func (d dispatcher) argsParam() reflect.Type { return d.open.In[1] }

func (d dispatcher) call(recv, sender, args reflect.Value) {
	switch d.kind {
	case instanceWithArgs:
		d.open.Call(recv, coerce(sender, d.open.In[0]), coerce(args, d.open.In[1]))
	case instanceNoArgs:
		d.open.Call(recv)
	case staticWithArgs:
		d.open.Call(reflect.Value{}, coerce(sender, d.open.In[0]), coerce(args, d.open.In[1]))
	case staticNoArgs:
		d.open.Call(reflect.Value{})
	}
}

// accepts reports whether args can be passed to the handler. Handlers
// without an args parameter accept anything; a missing value is accepted
// only where nil is.
func (d dispatcher) accepts(args reflect.Value) bool {
	if !d.withArgs() {
		return true
	}
	t := d.argsParam()
	if _, ok := unwrap(args, t); ok {
		return true
	}
	if !args.IsValid() || (args.Kind() == reflect.Interface && args.IsNil()) {
		return nillable(t)
	}
	return false
}

// coerce adapts v to parameter type t. Interface values are unwrapped; a
// value that does not fit becomes the zero value of t.
func coerce(v reflect.Value, t reflect.Type) reflect.Value {
	if u, ok := unwrap(v, t); ok {
		return u
	}
	return reflect.Zero(t)
}

func unwrap(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	for v.IsValid() {
		if v.Type().AssignableTo(t) {
			return v, true
		}
		if v.Kind() != reflect.Interface || v.IsNil() {
			break
		}
		v = v.Elem()
	}
	return reflect.Value{}, false
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}
