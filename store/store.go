// Package store holds the current tuning snapshot shared by the clients of
// one process.
//
// Readers load the current snapshot with a single atomic load and query it
// without locks. Writers are serialized and replace the snapshot wholesale,
// so a reader always sees either the old or the new tuning, never a mix.
// Old snapshots are reclaimed by the garbage collector once no reader holds
// them.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/vsariola/tunesync"
)

type (
	Store struct {
		current atomic.Pointer[tunesync.Snapshot]

		mu      sync.Mutex // serializes writers
		builder *tunesync.Builder

		published atomic.Uint64
		rejected  atomic.Uint64
		stale     atomic.Uint64
		ignored   atomic.Uint64
	}

	// Counters are diagnostic counts of what happened to incoming updates.
	Counters struct {
		Published uint64 // snapshots installed
		Rejected  uint64 // malformed SysEx messages
		Stale     uint64 // out of order or foreign master updates
		Ignored   uint64 // SysEx received while a master was present
	}
)

// New returns a store holding the 12-TET default snapshot, version 0.
func New() *Store {
	s := &Store{builder: tunesync.NewBuilder(nil)}
	s.current.Store(tunesync.Default())
	return s
}

// Current returns the current snapshot. It never blocks or allocates.
func (s *Store) Current() *tunesync.Snapshot {
	return s.current.Load()
}

// Update derives a new snapshot from the current one. fn gets a builder
// based on the current snapshot; if it returns nil, the result is installed
// with the next version and returned. If fn fails, nothing changes.
func (s *Store) Update(fn func(*tunesync.Builder) error) (*tunesync.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.current.Load()
	s.builder.Reset(cur)
	if err := fn(s.builder); err != nil {
		return nil, err
	}
	return s.install(s.builder.Build(cur.Version() + 1)), nil
}

// Publish installs the tuning held by snap, restamped with the next version
// of this store, and returns the installed snapshot.
func (s *Store) Publish(snap *tunesync.Snapshot) *tunesync.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builder.Reset(snap)
	return s.install(s.builder.Build(s.current.Load().Version() + 1))
}

func (s *Store) install(snap *tunesync.Snapshot) *tunesync.Snapshot {
	s.current.Store(snap)
	s.published.Add(1)
	return snap
}

func (s *Store) AddRejected() { s.rejected.Add(1) }
func (s *Store) AddStale()    { s.stale.Add(1) }
func (s *Store) AddIgnored()  { s.ignored.Add(1) }

func (s *Store) Counters() Counters {
	return Counters{
		Published: s.published.Load(),
		Rejected:  s.rejected.Load(),
		Stale:     s.stale.Load(),
		Ignored:   s.ignored.Load(),
	}
}
