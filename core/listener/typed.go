package listener

import "reflect"

// Typed is a listener whose target, source and argument types are known
// at compile time.
type Typed[TTarget, TSource, A any] struct {
	*Listener
}

// Target returns the target while it is alive.
func (t *Typed[TTarget, TSource, A]) Target() (TTarget, bool) {
	v, ok := t.Listener.Target().(TTarget)
	return v, ok
}

// Source returns the source while it is alive.
func (t *Typed[TTarget, TSource, A]) Source() (TSource, bool) {
	v, ok := t.Listener.Source().(TSource)
	return v, ok
}

// OnEvent forwards one firing with typed arguments.
func (t *Typed[TTarget, TSource, A]) OnEvent(sender any, args A) {
	t.Listener.OnEvent(sender, args)
}

// SubscribeToWeakEventWithExplicitSourceType subscribes handler on target
// to event on source, resolving the event on TSource rather than on the
// dynamic type of source. TSource may be an interface.
func SubscribeToWeakEventWithExplicitSourceType[TTarget, TSource, A any](
	deps Deps, target TTarget, source TSource, event string, handler any, throwOnFailure bool,
) (*Typed[TTarget, TSource, A], error) {
	l, err := Subscribe(deps, Options{
		Target:         target,
		Source:         source,
		EventName:      event,
		Handler:        handler,
		SourceType:     reflect.TypeFor[TSource](),
		ArgsType:       reflect.TypeFor[A](),
		ThrowOnFailure: throwOnFailure,
	})
	if l == nil {
		return nil, err
	}
	return &Typed[TTarget, TSource, A]{Listener: l}, nil
}

// SubscribeStatic subscribes handler on target to an event of a source that
// lives for the whole process. The source is held strongly.
func SubscribeStatic[TTarget, TSource, A any](
	deps Deps, target TTarget, source TSource, event string, handler any, throwOnFailure bool,
) (*Typed[TTarget, TSource, A], error) {
	l, err := Subscribe(deps, Options{
		Target:         target,
		Source:         source,
		EventName:      event,
		Handler:        handler,
		StaticSource:   true,
		SourceType:     reflect.TypeFor[TSource](),
		ArgsType:       reflect.TypeFor[A](),
		ThrowOnFailure: throwOnFailure,
	})
	if l == nil {
		return nil, err
	}
	return &Typed[TTarget, TSource, A]{Listener: l}, nil
}
