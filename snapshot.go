package tunesync

import (
	"cmp"
	"slices"
)

type (
	// Snapshot is an immutable, versioned tuning: a global table, up to 16
	// per-channel tables and a scale name. A Snapshot is never modified after
	// it has been built, so it can be read from any number of goroutines,
	// including real-time audio threads, without synchronization. Use a
	// Builder to derive a new Snapshot from an old one.
	Snapshot struct {
		version  uint64
		name     string
		global   *Table
		channels [NumChannels]*Table // nil: the channel inherits the global table

		// index[NumChannels] is for the global table
		index [NumChannels + 1]searchIndex
	}

	// searchIndex lists the mapped notes of a table sorted by frequency and
	// then by note number.
	searchIndex struct {
		notes [NumNotes]uint8
		n     int
	}

	// Builder derives a new Snapshot from a base snapshot using
	// copy-on-write: tables that are not touched are shared with the base.
	Builder struct {
		name     string
		global   *Table
		channels [NumChannels]*Table
		owned    [NumChannels + 1]bool // index NumChannels is for global
	}
)

var defaultSnapshot = func() *Snapshot {
	t := EqualTemperedTable()
	s := &Snapshot{name: DefaultName, global: &t}
	s.index[NumChannels].build(s.global)
	return s
}()

// Default returns the equal tempered snapshot with version 0. The same
// pointer is returned every time.
func Default() *Snapshot {
	return defaultSnapshot
}

func (s *Snapshot) Version() uint64 { return s.version }
func (s *Snapshot) Name() string    { return s.name }

// ChannelInUse reports whether the channel has its own table. Channels out
// of range never do.
func (s *Snapshot) ChannelInUse(channel int) bool {
	return validChannel(channel) && s.channels[channel] != nil
}

// NumChannelsInUse counts the channels that have their own table.
func (s *Snapshot) NumChannelsInUse() int {
	ret := 0
	for _, t := range s.channels {
		if t != nil {
			ret++
		}
	}
	return ret
}

// Global returns a copy of the global table.
func (s *Snapshot) Global() Table {
	return *s.global
}

// Channel returns a copy of the table of a channel, and false if the channel
// is not in use.
func (s *Snapshot) Channel(channel int) (Table, bool) {
	if !s.ChannelInUse(channel) {
		return Table{}, false
	}
	return *s.channels[channel], true
}

// Equal reports whether two snapshots hold the same tuning. Versions are not
// compared.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s.name != o.name || *s.global != *o.global {
		return false
	}
	for i := range s.channels {
		a, b := s.channels[i], o.channels[i]
		if (a == nil) != (b == nil) || (a != nil && *a != *b) {
			return false
		}
	}
	return true
}

func (idx *searchIndex) build(t *Table) {
	idx.n = 0
	for note, f := range t {
		if f > 0 {
			idx.notes[idx.n] = uint8(note)
			idx.n++
		}
	}
	// stable: notes with equal frequencies stay in ascending note order
	slices.SortStableFunc(idx.notes[:idx.n], func(a, b uint8) int {
		return cmp.Compare(t[a], t[b])
	})
}

// NewBuilder starts a Builder from base. A nil base means Default().
func NewBuilder(base *Snapshot) *Builder {
	if base == nil {
		base = defaultSnapshot
	}
	b := &Builder{}
	b.Reset(base)
	return b
}

// Reset discards all changes and makes the builder share every table of
// base, including its name. The version of base is not carried over.
func (b *Builder) Reset(base *Snapshot) {
	b.name = base.name
	b.global = base.global
	b.channels = base.channels
	b.owned = [NumChannels + 1]bool{}
}

func (b *Builder) SetName(name string) { b.name = name }
func (b *Builder) Name() string        { return b.name }

// InUse reports whether the channel currently has its own table.
func (b *Builder) InUse(channel int) bool {
	return validChannel(channel) && b.channels[channel] != nil
}

// Table returns a writable table: the global table for channels out of
// range, else the table of the channel. A channel that is not in use starts
// from a copy of the global table and becomes in use.
func (b *Builder) Table(channel int) *Table {
	if !validChannel(channel) {
		if !b.owned[NumChannels] {
			t := *b.global
			b.global = &t
			b.owned[NumChannels] = true
		}
		return b.global
	}
	if !b.owned[channel] {
		var t Table
		if b.channels[channel] != nil {
			t = *b.channels[channel]
		} else {
			t = *b.global
		}
		b.channels[channel] = &t
		b.owned[channel] = true
	}
	return b.channels[channel]
}

// SetFrequency maps a note of a channel (or of the global table, with
// NoChannel) to a frequency. Frequencies that are not positive unmap the
// note. Out of range notes are ignored.
func (b *Builder) SetFrequency(channel, note int, freq float64) {
	if note < 0 || note >= NumNotes {
		return
	}
	if !(freq > 0) {
		freq = Unmapped
	}
	b.Table(channel)[note] = freq
}

// Unmap marks a note as unmapped.
func (b *Builder) Unmap(channel, note int) {
	b.SetFrequency(channel, note, Unmapped)
}

// SetTable replaces a whole table.
func (b *Builder) SetTable(channel int, t Table) {
	*b.Table(channel) = t
}

// ClearChannel makes the channel inherit the global table again.
func (b *Builder) ClearChannel(channel int) {
	if !validChannel(channel) {
		return
	}
	b.channels[channel] = nil
	b.owned[channel] = false
}

// Build returns a new Snapshot with the given version. The builder can
// continue to be used; further changes never affect the built snapshot.
func (b *Builder) Build(version uint64) *Snapshot {
	s := &Snapshot{
		version:  version,
		name:     b.name,
		global:   b.global,
		channels: b.channels,
	}
	for i, t := range s.channels {
		if t != nil {
			s.index[i].build(t)
		}
	}
	s.index[NumChannels].build(s.global)
	// the snapshot now shares the tables; writing again must copy them first
	b.owned = [NumChannels + 1]bool{}
	return s
}
