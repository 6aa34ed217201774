package weakfunc

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	name  string
	calls []string
}

func (r *recorder) Touch()              { r.calls = append(r.calls, "touch") }
func (r *recorder) Note(s string)       { r.calls = append(r.calls, s) }
func (r *recorder) Name() string        { return r.name }
func (r *recorder) Scale(v int) int     { return v * len(r.name) }
func (r *recorder) Boom()               { panic("boom") }
func (r *recorder) Describe(any) string { return r.name }

var staticHits int

func staticTouch() { staticHits++ }

// collect runs the collector until fn reports true.
func collect(t *testing.T, fn func() bool) {
	t.Helper()
	for i := 0; i < 20; i++ {
		runtime.GC()
		if fn() {
			return
		}
	}
	t.Fatalf("object was not collected")
}

func TestAction_ExecuteWhileAlive(t *testing.T) {
	r := &recorder{name: "alive"}
	a, err := NewAction(r, r.Touch)
	require.NoError(t, err)
	assert.True(t, a.Execute())
	assert.True(t, a.Execute())
	assert.Equal(t, []string{"touch", "touch"}, r.calls)
	assert.Equal(t, "Touch", a.Name())
	runtime.KeepAlive(r)
}

func TestActionOf_PassesArgument(t *testing.T) {
	r := &recorder{name: "args"}
	a, err := NewActionOf[string](r, r.Note)
	require.NoError(t, err)
	require.True(t, a.Execute("hello"))
	assert.Equal(t, []string{"hello"}, r.calls)
}

func TestFunc_ReturnsResult(t *testing.T) {
	r := &recorder{name: "result"}
	f, err := NewFunc[string](r, r.Name)
	require.NoError(t, err)
	got, ok := f.Execute()
	require.True(t, ok)
	assert.Equal(t, "result", got)

	g, err := NewFuncOf[int, int](r, r.Scale)
	require.NoError(t, err)
	n, ok := g.Execute(2)
	require.True(t, ok)
	assert.Equal(t, 12, n)

	d, err := NewFuncOf[any, string](r, r.Describe)
	require.NoError(t, err)
	s, ok := d.Execute(nil)
	require.True(t, ok)
	assert.Equal(t, "result", s)
}

func TestAction_DeadTargetDisablesForGood(t *testing.T) {
	r := &recorder{name: "doomed"}
	a, err := NewAction(r, r.Touch)
	require.NoError(t, err)
	r = nil

	collect(t, func() bool { return !a.IsAlive() })
	assert.False(t, a.Execute())
	assert.False(t, a.IsAlive())
	assert.Nil(t, a.Target())
}

func TestFunc_DeadTargetReturnsZero(t *testing.T) {
	r := &recorder{name: "doomed"}
	f, err := NewFunc[string](r, r.Name)
	require.NoError(t, err)
	r = nil

	collect(t, func() bool { return !f.IsAlive() })
	got, ok := f.Execute()
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestAction_RejectsClosure(t *testing.T) {
	r := &recorder{name: "closure"}
	local := 0
	_, err := NewAction(r, func() { local++ })
	assert.True(t, errors.Is(err, ErrUnsupportedCallable), "got %v", err)

	_, err = NewActionOf[string](r, func(s string) { r.Note(s) })
	assert.True(t, errors.Is(err, ErrUnsupportedCallable), "got %v", err)
}

func TestAction_Static(t *testing.T) {
	staticHits = 0
	a, err := NewAction(nil, staticTouch)
	require.NoError(t, err)
	assert.True(t, a.IsStatic())
	assert.True(t, a.Execute())
	assert.Equal(t, 1, staticHits)
}

func TestAction_MethodValueNeedsTarget(t *testing.T) {
	r := &recorder{}
	_, err := NewAction(nil, r.Touch)
	assert.ErrorIs(t, err, ErrUnsupportedCallable)
}

func TestAction_PanicPropagates(t *testing.T) {
	r := &recorder{name: "panics"}
	a, err := NewAction(r, r.Boom)
	require.NoError(t, err)
	assert.PanicsWithValue(t, "boom", func() { a.Execute() })
}
