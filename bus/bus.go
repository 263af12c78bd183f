// Package bus is an in-process broadcast channel for master messages, for
// masters and clients living in the same process (and for tests).
package bus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vsariola/tunesync/link"
)

type (
	// Bus fans out every broadcast message to all subscribers. Each
	// subscriber has its own queue and goroutine, so a slow handler never
	// blocks the master; if the queue is full, the message is dropped for
	// that subscriber and counted. The latest tuning is replayed to new
	// subscribers until its master says goodbye.
	Bus struct {
		mu     sync.Mutex
		subs   map[*subscriber]struct{}
		latest link.Message
		closed bool

		dropped atomic.Uint64
	}

	subscriber struct {
		queue    chan link.Message
		close    chan struct{}
		finished chan struct{}
	}
)

var ErrClosed = errors.New("bus: closed")

// QueueSize is the number of messages that can wait for one subscriber.
const QueueSize = 64

var _ link.Channel = (*Bus)(nil)
var _ link.Sender = (*Bus)(nil)

func New() *Bus {
	return &Bus{subs: map[*subscriber]struct{}{}}
}

// Subscribe starts delivering messages to handler. cancel stops the
// delivery and waits until the handler has returned; it must not be called
// from within the handler.
func (b *Bus) Subscribe(handler func(link.Message)) (cancel func(), err error) {
	s := &subscriber{
		queue:    make(chan link.Message, QueueSize),
		close:    make(chan struct{}, 1),
		finished: make(chan struct{}),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.latest.Kind == link.Tuning {
		s.queue <- b.latest
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	go s.run(handler)
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			TrySend(s.close, struct{}{})
			<-s.finished
		})
	}, nil
}

// Broadcast queues the message for every subscriber.
func (b *Bus) Broadcast(m link.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	switch {
	case m.Kind == link.Tuning:
		b.latest = m
	case m.Kind == link.Goodbye && m.Master == b.latest.Master:
		b.latest = link.Message{}
	}
	for s := range b.subs {
		if !TrySend(s.queue, m) {
			b.dropped.Add(1)
		}
	}
	return nil
}

// Close stops every subscriber. Later broadcasts and subscriptions fail.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = map[*subscriber]struct{}{}
	b.closed = true
	b.mu.Unlock()
	for s := range subs {
		TrySend(s.close, struct{}{})
		<-s.finished
	}
}

// Dropped counts the messages dropped because a subscriber queue was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

func (s *subscriber) run(handler func(link.Message)) {
	defer close(s.finished)
	for {
		select {
		case <-s.close:
			return
		case m := <-s.queue:
			handler(m)
		}
	}
}

// TrySend sends a value to a channel if it is not full. It never blocks
// and reports whether the value was sent.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}
