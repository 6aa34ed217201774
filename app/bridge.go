package app

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kilianp07/weakevent/infra/logger"
	"github.com/kilianp07/weakevent/infra/mqtt"
	"github.com/kilianp07/weakevent/weakevent"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Relay is a weak listener target for mqtt.Source messages. It counts
// messages per topic and, when a publisher and prefix are set, republishes
// them under the prefix.
type Relay struct {
	prefix string
	pub    Publisher
	log    logger.Logger

	total  atomic.Uint64
	mu     sync.Mutex
	topics map[string]uint64
}

// NewRelay builds a Relay. pub may be nil to only count messages.
func NewRelay(prefix string, pub Publisher) *Relay {
	return &Relay{
		prefix: strings.TrimSuffix(prefix, "/"),
		pub:    pub,
		log:    logger.New("relay"),
		topics: make(map[string]uint64),
	}
}

// OnMessage handles one message.
func (r *Relay) OnMessage(_ any, m *mqtt.MessageArgs) {
	if r.prefix != "" && strings.HasPrefix(m.Topic, r.prefix+"/") {
		return
	}
	r.total.Add(1)
	r.mu.Lock()
	r.topics[m.Topic]++
	r.mu.Unlock()
	r.log.Debugw("message", map[string]any{"topic": m.Topic, "bytes": len(m.Payload), "retained": m.Retained})
	if r.pub == nil || r.prefix == "" {
		return
	}
	if err := r.pub.Publish(r.prefix+"/"+m.Topic, m.Payload); err != nil {
		r.log.Errorf("relay %s: %v", m.Topic, err)
	}
}

// Total returns the number of handled messages.
func (r *Relay) Total() uint64 { return r.total.Load() }

// Count returns the number of messages handled for topic.
func (r *Relay) Count(topic string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.topics[topic]
}

// Bridge subscribes relay to the messages of src through the service
// engine. The source is held strongly since it lives as long as the
// connection.
func (s *Service) Bridge(src *mqtt.Source, relay *Relay) (*weakevent.Listener, error) {
	return s.Subscribe(relay, src, "Message", relay.OnMessage, weakevent.StaticSource())
}
