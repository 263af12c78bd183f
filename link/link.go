// Package link follows a tuning master over a broadcast channel and
// publishes its tunings into a store.
package link

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vsariola/tunesync"
	"github.com/vsariola/tunesync/store"
)

type (
	MessageKind int

	// Message is one broadcast from a master. Seq increases every time the
	// master publishes a new tuning; heartbeats repeat the last Seq.
	Message struct {
		Kind     MessageKind
		Master   uuid.UUID
		Seq      uint64
		Snapshot *tunesync.Snapshot // only for Tuning
	}

	// Channel is a broadcast channel carrying master messages. Subscribe
	// registers a handler that is called, from any goroutine, for every
	// message received until cancel is called. When a master is
	// broadcasting, a new subscriber receives its latest tuning.
	Channel interface {
		Subscribe(handler func(Message)) (cancel func(), err error)
	}

	// Sender sends a message to every subscriber of a channel.
	Sender interface {
		Broadcast(Message) error
	}

	Config struct {
		// HeartbeatTimeout is how long a master is considered present after
		// the last message heard from it. Zero means DefaultHeartbeatTimeout.
		HeartbeatTimeout time.Duration
		Now              func() time.Time // nil means time.Now
		Logger           *slog.Logger     // nil means slog.Default()
	}

	// Link tracks the presence of one master at a time and publishes its
	// tunings in order. Attach, Detach and the message handling are
	// serialized; HasMaster only reads atomics and can be called from the
	// audio thread.
	Link struct {
		store   *store.Store
		timeout time.Duration
		now     func() time.Time
		log     *slog.Logger

		attached  atomic.Bool
		lastHeard atomic.Int64 // unix nanoseconds; 0: nothing heard, or goodbye

		attachMu sync.Mutex
		cancel   func()

		mu     sync.Mutex
		master uuid.UUID
		seq    uint64
		hasSeq bool
	}
)

const (
	Tuning MessageKind = iota + 1
	Heartbeat
	Goodbye
)

const DefaultHeartbeatTimeout = 3 * time.Second

func (k MessageKind) String() string {
	switch k {
	case Tuning:
		return "tuning"
	case Heartbeat:
		return "heartbeat"
	case Goodbye:
		return "goodbye"
	}
	return fmt.Sprintf("MessageKind(%d)", int(k))
}

func New(st *store.Store, cfg Config) *Link {
	l := &Link{store: st, timeout: cfg.HeartbeatTimeout, now: cfg.Now, log: cfg.Logger}
	if l.timeout <= 0 {
		l.timeout = DefaultHeartbeatTimeout
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

// Attach subscribes to a channel, detaching from the previous one first.
// The master state starts from scratch.
func (l *Link) Attach(ch Channel) error {
	l.attachMu.Lock()
	defer l.attachMu.Unlock()
	l.detach()
	l.mu.Lock()
	l.master, l.seq, l.hasSeq = uuid.Nil, 0, false
	l.mu.Unlock()
	l.attached.Store(true)
	// Subscribe may replay the latest tuning synchronously
	cancel, err := ch.Subscribe(l.handle)
	if err != nil {
		l.attached.Store(false)
		return fmt.Errorf("could not subscribe to the master channel: %w", err)
	}
	l.cancel = cancel
	l.log.Debug("link attached")
	return nil
}

// Detach unsubscribes from the channel. The last published snapshot stays
// current in the store.
func (l *Link) Detach() {
	l.attachMu.Lock()
	defer l.attachMu.Unlock()
	l.detach()
}

func (l *Link) detach() {
	if l.cancel == nil {
		return
	}
	l.attached.Store(false)
	l.lastHeard.Store(0)
	l.cancel()
	l.cancel = nil
	l.log.Debug("link detached")
}

// Attached reports whether the link is subscribed to a channel.
func (l *Link) Attached() bool { return l.attached.Load() }

// HasMaster reports whether the link is attached and has heard from a master
// within the heartbeat timeout.
func (l *Link) HasMaster() bool {
	return l.attached.Load() && l.present(l.now())
}

func (l *Link) present(now time.Time) bool {
	t := l.lastHeard.Load()
	return t != 0 && now.UnixNano()-t < int64(l.timeout)
}

func (l *Link) handle(m Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.attached.Load() {
		return
	}
	now := l.now()
	if m.Master != l.master {
		if l.present(now) {
			l.store.AddStale()
			l.log.Debug("ignoring a second master", "master", m.Master, "current", l.master)
			return
		}
		if m.Kind == Goodbye {
			return
		}
		l.log.Info("following master", "master", m.Master)
		l.master, l.seq, l.hasSeq = m.Master, 0, false
	}
	switch m.Kind {
	case Goodbye:
		l.lastHeard.Store(0)
		l.log.Info("master said goodbye", "master", m.Master)
		return
	case Heartbeat:
		l.lastHeard.Store(now.UnixNano())
	case Tuning:
		l.lastHeard.Store(now.UnixNano())
		if m.Snapshot == nil || (l.hasSeq && m.Seq == l.seq) {
			return
		}
		if l.hasSeq && m.Seq < l.seq {
			l.store.AddStale()
			l.log.Debug("dropping stale tuning", "seq", m.Seq, "last", l.seq)
			return
		}
		snap := l.store.Publish(m.Snapshot)
		l.seq, l.hasSeq = m.Seq, true
		l.log.Debug("tuning published", "seq", m.Seq, "version", snap.Version(), "name", snap.Name())
	}
}
