package app

import (
	"fmt"
	"io"
	"runtime"

	"github.com/kilianp07/weakevent/core/event"
	"github.com/kilianp07/weakevent/weakevent"
)

// ClickArgs describes a click.
type ClickArgs struct {
	X, Y int
}

// Button is a long lived event source.
type Button struct {
	Clicked event.Event[ClickArgs]
}

// Panel is a short lived subscriber of a Button.
type Panel struct {
	name      string
	delivered *int
	out       io.Writer
}

func (p *Panel) OnClicked(_ any, a ClickArgs) {
	*p.delivered++
	fmt.Fprintf(p.out, "%s: click at (%d,%d)\n", p.name, a.X, a.Y)
}

// DemoResult is what the demo observed.
type DemoResult struct {
	Delivered int
	Collected bool
	State     weakevent.State
	Remaining int
}

// Demo subscribes a panel to a button, clicks three times, drops the panel
// and clicks again. The last click detaches the listener once the panel
// has been collected.
func Demo(e *weakevent.Engine, w io.Writer) (DemoResult, error) {
	btn := &Button{}
	var res DemoResult
	l, err := attachPanel(e, btn, w, &res.Delivered)
	if err != nil {
		return res, err
	}
	for i := 0; i < 3; i++ {
		btn.Clicked.Raise(btn, ClickArgs{X: i, Y: i * 2})
	}
	fmt.Fprintf(w, "listener %s is %s with %d handler(s) on the button\n", l.ID(), l.State(), btn.Clicked.Count())

	for i := 0; i < 10 && l.IsTargetAlive(); i++ {
		runtime.GC()
	}
	res.Collected = !l.IsTargetAlive()
	btn.Clicked.Raise(btn, ClickArgs{X: 99, Y: 99})

	res.State = l.State()
	res.Remaining = btn.Clicked.Count()
	fmt.Fprintf(w, "panel collected=%t, listener %s, %d handler(s) left\n", res.Collected, res.State, res.Remaining)
	return res, nil
}

func attachPanel(e *weakevent.Engine, btn *Button, w io.Writer, delivered *int) (*weakevent.Listener, error) {
	p := &Panel{name: "panel", delivered: delivered, out: w}
	return e.Subscribe(p, btn, "Clicked", p.OnClicked)
}
