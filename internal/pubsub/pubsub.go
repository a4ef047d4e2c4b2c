// Package pubsub provides the message bus that carries published messages
// between execution contexts.
package pubsub

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Message is a published payload.
type Message struct {
	Channel string    `json:"channel"`
	Payload string    `json:"payload"`
	Origin  string    `json:"origin"`
	At      time.Time `json:"ts"`
}

// Handler receives messages published on a topic.
type Handler func(Message)

// Bus delivers messages published on a topic to every subscriber of that
// topic, including subscribers in other contexts.
type Bus interface {
	Publish(topic string, msg Message)
	// Subscribe registers h and returns a function that removes it.
	Subscribe(topic string, h Handler) (unsubscribe func())
}

// LocalBus is an in-process Bus. Handlers run synchronously on the
// publisher's goroutine. It is safe for concurrent use.
type LocalBus struct {
	topics *xsync.MapOf[string, *xsync.MapOf[uint64, Handler]]
	nextID atomic.Uint64
}

// NewLocalBus creates an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{topics: xsync.NewMapOf[string, *xsync.MapOf[uint64, Handler]]()}
}

// Publish delivers msg to every handler subscribed to topic.
func (b *LocalBus) Publish(topic string, msg Message) {
	subs, ok := b.topics.Load(topic)
	if !ok {
		return
	}
	subs.Range(func(_ uint64, h Handler) bool {
		h(msg)
		return true
	})
}

// Subscribe registers h for topic.
func (b *LocalBus) Subscribe(topic string, h Handler) func() {
	id := b.nextID.Add(1)
	subs, _ := b.topics.LoadOrCompute(topic, func() *xsync.MapOf[uint64, Handler] {
		return xsync.NewMapOf[uint64, Handler]()
	})
	subs.Store(id, h)

	return func() {
		subs.Delete(id)
	}
}

// NumSub returns the number of handlers subscribed to topic.
func (b *LocalBus) NumSub(topic string) int {
	subs, ok := b.topics.Load(topic)
	if !ok {
		return 0
	}
	return subs.Size()
}
