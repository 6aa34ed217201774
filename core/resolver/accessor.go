package resolver

import (
	"fmt"
	"reflect"
)

// Kind selects the add or the remove half of an event.
type Kind int

const (
	Attach Kind = iota
	Detach
)

func (k Kind) String() string {
	if k == Attach {
		return "attach"
	}
	return "detach"
}

// Strategy records how an accessor was found.
type Strategy int

const (
	// Registered accessors were supplied through Resolver.Register.
	Registered Strategy = iota
	// Declared accessors live on the nominal source type.
	Declared
	// RuntimeType accessors were found on the dynamic type of the source
	// after the nominal type had none.
	RuntimeType
	// NamePattern accessors matched the best-effort detach name pattern.
	NamePattern
)

func (s Strategy) String() string {
	switch s {
	case Registered:
		return "registered"
	case Declared:
		return "declared"
	case RuntimeType:
		return "runtime_type"
	case NamePattern:
		return "name_pattern"
	default:
		return "unknown"
	}
}

// Accessor is a resolved add or remove operation. Once resolved it is
// consumed uniformly whatever strategy produced it.
type Accessor struct {
	Event    string
	Kind     Kind
	Strategy Strategy
	// Owner is the type the accessor was found on.
	Owner reflect.Type
	// Member names the method or field.method that implements it.
	Member string
	// HandlerType is the type of the single argument: the handler function
	// type for attach, the subscription key type for detach.
	HandlerType reflect.Type
	// ResultType is the first non-error result, nil if none. For attach it
	// is the key later handed to detach.
	ResultType reflect.Type

	call func(src, arg reflect.Value) []reflect.Value
}

var errorType = reflect.TypeFor[error]()

// Invoke runs the accessor against src. The first non-error result is
// returned; a non-nil error result becomes err. Panics raised inside the
// reflective call are converted to ErrAccessorPanic.
func (a *Accessor) Invoke(src, arg reflect.Value) (result reflect.Value, err error) {
	if !src.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: %s on invalid source", ErrAccessorPanic, a)
	}
	if !arg.IsValid() {
		arg = reflect.Zero(a.HandlerType)
	}
	defer func() {
		if r := recover(); r != nil {
			result = reflect.Value{}
			err = fmt.Errorf("%w: %s: %v", ErrAccessorPanic, a, r)
		}
	}()
	for _, out := range a.call(src, arg) {
		if out.Type().Implements(errorType) && out.Kind() == reflect.Interface {
			if !out.IsNil() {
				return reflect.Value{}, out.Interface().(error)
			}
			continue
		}
		if !result.IsValid() {
			result = out
		}
	}
	return result, nil
}

func (a *Accessor) String() string {
	return fmt.Sprintf("%s %s.%s via %s (%s)", a.Kind, a.Owner, a.Member, a.Strategy, a.Event)
}

func firstResult(t reflect.Type) reflect.Type {
	for i := 0; i < t.NumOut(); i++ {
		if t.Out(i) != errorType {
			return t.Out(i)
		}
	}
	return nil
}

// methodAccessor builds an accessor from a single-argument method m of
// owner. Fake providers may return methods without Func, which are then
// called by name on the source.
func methodAccessor(owner reflect.Type, m reflect.Method) (*Accessor, bool) {
	mt := m.Type
	skip := 1
	if owner.Kind() == reflect.Interface {
		skip = 0
	}
	if mt == nil || mt.NumIn() != skip+1 {
		return nil, false
	}
	name := m.Name
	fn := m.Func
	return &Accessor{
		Owner:       owner,
		Member:      name,
		HandlerType: mt.In(skip),
		ResultType:  firstResult(mt),
		call: func(src, arg reflect.Value) []reflect.Value {
			if fn.IsValid() && src.Type() == owner {
				return fn.Call([]reflect.Value{src, arg})
			}
			mv := src.MethodByName(name)
			if !mv.IsValid() {
				panic(fmt.Sprintf("%s has no method %s", src.Type(), name))
			}
			return mv.Call([]reflect.Value{arg})
		},
	}, true
}

// fieldAccessor builds an accessor that calls member on the event value
// stored in field f, e.g. Clicked.Add.
func fieldAccessor(owner reflect.Type, f reflect.StructField, member string) (*Accessor, bool) {
	evType := f.Type
	if evType.Kind() != reflect.Pointer {
		evType = reflect.PointerTo(evType)
	}
	m, ok := evType.MethodByName(member)
	if !ok || m.Type.NumIn() != 2 {
		return nil, false
	}
	index := f.Index
	fieldName := f.Name
	return &Accessor{
		Owner:       owner,
		Member:      fieldName + "." + member,
		HandlerType: m.Type.In(1),
		ResultType:  firstResult(m.Type),
		call: func(src, arg reflect.Value) []reflect.Value {
			sv := src
			if sv.Kind() == reflect.Pointer {
				if sv.IsNil() {
					panic("nil source")
				}
				sv = sv.Elem()
			}
			fv, err := sv.FieldByIndexErr(index)
			if err != nil {
				panic(err)
			}
			ev := fv
			if fv.Kind() != reflect.Pointer {
				if !fv.CanAddr() {
					panic(fmt.Sprintf("event field %s is not addressable", fieldName))
				}
				ev = fv.Addr()
			} else if fv.IsNil() {
				panic(fmt.Sprintf("event field %s is nil", fieldName))
			}
			return m.Func.Call([]reflect.Value{ev, arg})
		},
	}, true
}

// funcAccessor wraps a registered receiver-first function.
func funcAccessor(owner reflect.Type, fn reflect.Value) *Accessor {
	ft := fn.Type()
	return &Accessor{
		Owner:       owner,
		Member:      funcLabel(fn),
		HandlerType: ft.In(1),
		ResultType:  firstResult(ft),
		call: func(src, arg reflect.Value) []reflect.Value {
			return fn.Call([]reflect.Value{src, arg})
		},
	}
}
