package resolver

import "reflect"

// Provider is the reflection capability the resolver depends on. It is an
// interface so resolution rules can be exercised against synthetic types.
type Provider interface {
	// MethodByName returns the exported method name of t.
	MethodByName(t reflect.Type, name string) (reflect.Method, bool)
	// FieldByName returns the exported struct field name of t or of the
	// struct t points to. Promoted fields are included.
	FieldByName(t reflect.Type, name string) (reflect.StructField, bool)
	// Methods lists the exported methods of t.
	Methods(t reflect.Type) []reflect.Method
}

// ReflectProvider implements Provider with the reflect package.
type ReflectProvider struct{}

func (ReflectProvider) MethodByName(t reflect.Type, name string) (reflect.Method, bool) {
	return t.MethodByName(name)
}

func (ReflectProvider) FieldByName(t reflect.Type, name string) (reflect.StructField, bool) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}
	f, ok := t.FieldByName(name)
	if !ok || !f.IsExported() {
		return reflect.StructField{}, false
	}
	return f, true
}

func (ReflectProvider) Methods(t reflect.Type) []reflect.Method {
	out := make([]reflect.Method, 0, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		out = append(out, t.Method(i))
	}
	return out
}
