package resolver

import (
	"fmt"
	"reflect"

	"github.com/kilianp07/weakevent/core/cache"
	"github.com/kilianp07/weakevent/core/event"
)

var (
	propertyChangedHandler   = reflect.TypeFor[event.PropertyChangedHandler]()
	collectionChangedHandler = reflect.TypeFor[event.CollectionChangedHandler]()
	propertyChangedArgs      = reflect.TypeFor[*event.PropertyChangedArgs]()
	collectionChangedArgs    = reflect.TypeFor[*event.CollectionChangedArgs]()

	// NoArgs is inferred for events whose handlers take no arguments.
	NoArgs = reflect.TypeFor[struct{}]()
)

// InferEventArgsType determines the event argument type for a consumer
// handler of type handler, subscribed to event on source:
//
//   - event.PropertyChangedHandler maps to *event.PropertyChangedArgs;
//   - event.CollectionChangedHandler maps to *event.CollectionChangedArgs;
//   - func(sender, A), event.Handler[A] included, maps to A;
//   - func() maps to the argument type of the event's own handler type,
//     which requires resolving the event on source.
func (r *Resolver) InferEventArgsType(handler, source reflect.Type, name string) (reflect.Type, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler type", ErrUnsupportedHandlerShape)
	}
	return r.argTypes.GetOrAdd(func() (reflect.Type, error) {
		return r.inferArgs(handler, source, name)
	}, cache.TypeKey(handler), cache.TypeKey(source), name)
}

func (r *Resolver) inferArgs(handler, source reflect.Type, name string) (reflect.Type, error) {
	switch {
	case handler == propertyChangedHandler:
		return propertyChangedArgs, nil
	case handler == collectionChangedHandler:
		return collectionChangedArgs, nil
	case handler.Kind() != reflect.Func:
		return nil, fmt.Errorf("%w: %s is not a function", ErrUnsupportedHandlerShape, handler)
	case handler.NumIn() == 2:
		return handler.In(1), nil
	case handler.NumIn() == 0:
		acc, ok := r.ResolveAttach(source, source, name)
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s, needed to infer arguments of %s", ErrAccessorNotFound, name, source, handler)
		}
		return ArgsOf(acc.HandlerType)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHandlerShape, handler)
	}
}

// ArgsOf extracts the argument type from an event handler type: the second
// parameter of func(sender, A), the only parameter of func(A), NoArgs for
// func().
func ArgsOf(handler reflect.Type) (reflect.Type, error) {
	if handler.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: %s is not a function", ErrUnsupportedHandlerShape, handler)
	}
	switch handler.NumIn() {
	case 2:
		return handler.In(1), nil
	case 1:
		return handler.In(0), nil
	case 0:
		return NoArgs, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHandlerShape, handler)
	}
}
