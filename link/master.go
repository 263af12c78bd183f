package link

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vsariola/tunesync"
)

// Master is a reference tuning master: it broadcasts tunings with an
// increasing sequence number and heartbeats in between.
type Master struct {
	id     uuid.UUID
	sender Sender
	log    *slog.Logger

	mu      sync.Mutex
	seq     uint64
	current *tunesync.Snapshot
	closed  bool
}

// NewMaster creates a master with a fresh random identity.
func NewMaster(sender Sender, logger *slog.Logger) *Master {
	if logger == nil {
		logger = slog.Default()
	}
	return &Master{id: uuid.New(), sender: sender, log: logger}
}

func (m *Master) ID() uuid.UUID { return m.id }

// Publish broadcasts a new tuning.
func (m *Master) Publish(s *tunesync.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("master %v is closed", m.id)
	}
	m.seq++
	m.current = s
	if err := m.sender.Broadcast(Message{Kind: Tuning, Master: m.id, Seq: m.seq, Snapshot: s}); err != nil {
		return fmt.Errorf("could not broadcast tuning %d: %w", m.seq, err)
	}
	return nil
}

// Latest returns the message of the latest published tuning, to be replayed
// to new subscribers.
func (m *Master) Latest() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.closed {
		return Message{}, false
	}
	return Message{Kind: Tuning, Master: m.id, Seq: m.seq, Snapshot: m.current}, true
}

// Heartbeat broadcasts a heartbeat carrying the current sequence number.
func (m *Master) Heartbeat() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	return m.sender.Broadcast(Message{Kind: Heartbeat, Master: m.id, Seq: m.seq})
}

// Run sends heartbeats every interval until ctx is done, then says goodbye.
// Failed heartbeats are logged and retried on the next tick.
func (m *Master) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return m.Close()
		case <-ticker.C:
			if err := m.Heartbeat(); err != nil {
				m.log.Warn("heartbeat failed", "master", m.id, "err", err)
			}
		}
	}
}

// Close says goodbye. Closing twice is a no-op.
func (m *Master) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if err := m.sender.Broadcast(Message{Kind: Goodbye, Master: m.id, Seq: m.seq}); err != nil {
		return fmt.Errorf("could not say goodbye: %w", err)
	}
	return nil
}
