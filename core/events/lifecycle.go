package events

import "time"

// Lifecycle is implemented by every listener lifecycle event.
type Lifecycle interface {
	EventName() string
}

// Subscribed is published once a listener is attached.
type Subscribed struct {
	ListenerID string
	Event      string
	TargetType string
	SourceType string
	Strategy   string
	Time       time.Time
}

// SubscribeFailed is published when a subscription could not be attached.
type SubscribeFailed struct {
	Event      string
	SourceType string
	Err        error
	Time       time.Time
}

// Dispatched is published for every forwarded firing.
type Dispatched struct {
	ListenerID string
	Event      string
	Latency    time.Duration
}

// DetachReason tells why a listener detached.
type DetachReason string

const (
	ReasonExplicit        DetachReason = "explicit"
	ReasonTargetCollected DetachReason = "target_collected"
	ReasonSourceCollected DetachReason = "source_collected"
)

// Detached is published when a listener stops listening. Err carries a
// failed remove accessor call, which never prevents the detach.
type Detached struct {
	ListenerID string
	Event      string
	Reason     DetachReason
	Err        error
	Time       time.Time
}

func (e Subscribed) EventName() string      { return e.Event }
func (e SubscribeFailed) EventName() string { return e.Event }
func (e Dispatched) EventName() string      { return e.Event }
func (e Detached) EventName() string        { return e.Event }
