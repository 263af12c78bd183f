package tunesync

import "math"

// The queries below are safe to call from a real-time thread: they do not
// allocate, lock or fail. Out of range notes are clamped and out of range
// channels are treated as NoChannel.

// NoteToFrequency returns the frequency of a note: the entry of the channel
// table if the channel is in use and the entry is mapped, else the entry of
// the global table, else the equal tempered frequency. Unmapped notes still
// get a usable frequency; use ShouldFilterNote to decide whether to play
// them.
func (s *Snapshot) NoteToFrequency(note, channel int) float64 {
	note = clampNote(note)
	if validChannel(channel) {
		if t := s.channels[channel]; t != nil && t[note] > 0 {
			return t[note]
		}
	}
	if f := s.global[note]; f > 0 {
		return f
	}
	return equalTempered[note]
}

// RetuningInSemitones returns how many semitones the note is detuned from
// 12-TET.
func (s *Snapshot) RetuningInSemitones(note, channel int) float64 {
	note = clampNote(note)
	return 12 * math.Log2(s.NoteToFrequency(note, channel)/equalTempered[note])
}

// RetuningAsRatio returns the frequency of the note divided by its 12-TET
// frequency.
func (s *Snapshot) RetuningAsRatio(note, channel int) float64 {
	note = clampNote(note)
	return s.NoteToFrequency(note, channel) / equalTempered[note]
}

// ShouldFilterNote reports whether the note is unmapped, and should not be
// played at all. For a channel in use, the channel table decides; otherwise
// the global table.
func (s *Snapshot) ShouldFilterNote(note, channel int) bool {
	note = clampNote(note)
	if validChannel(channel) {
		if t := s.channels[channel]; t != nil {
			return !(t[note] > 0)
		}
	}
	return !(s.global[note] > 0)
}

// FrequencyToNote returns the playable note whose pitch is closest to freq.
// If the channel is in use, only its table is searched, else the global
// table. Ties go to the lower note. If no note is mapped, the nearest 12-TET
// note is returned.
func (s *Snapshot) FrequencyToNote(freq float64, channel int) int {
	t, idx := s.global, &s.index[NumChannels]
	if validChannel(channel) && s.channels[channel] != nil {
		t, idx = s.channels[channel], &s.index[channel]
	}
	if note, _, ok := idx.nearest(t, freq); ok {
		return note
	}
	return nearestEqualTempered(freq)
}

// FrequencyToNoteAndChannel returns the note closest to freq and a channel on
// which it should be sent so that the note is not filtered. The global table
// is preferred when at least one channel inherits it; the lowest such
// channel is then returned. Otherwise the channel tables are searched and
// the closest match wins, ties going to the lower channel.
func (s *Snapshot) FrequencyToNoteAndChannel(freq float64) (note, channel int) {
	for ch, t := range s.channels {
		if t != nil {
			continue
		}
		if n, _, ok := s.index[NumChannels].nearest(s.global, freq); ok {
			return n, ch
		}
		break
	}
	note, channel = -1, 0
	best := math.Inf(1)
	for ch, t := range s.channels {
		if t == nil {
			continue
		}
		if n, d, ok := s.index[ch].nearest(t, freq); ok && d < best {
			note, channel, best = n, ch, d
		}
	}
	if note < 0 {
		return nearestEqualTempered(freq), 0
	}
	return note, channel
}

// nearest binary searches the index for the note closest in pitch to freq.
// d is the distance in octaves.
func (idx *searchIndex) nearest(t *Table, freq float64) (note int, d float64, ok bool) {
	if idx.n == 0 {
		return 0, 0, false
	}
	if !(freq > 0) || math.IsInf(freq, 1) {
		// no meaningful pitch distance; take the lowest or the highest entry
		i := 0
		if freq > 0 {
			i = idx.n - 1
			for i > 0 && t[idx.notes[i-1]] == t[idx.notes[i]] {
				i--
			}
		}
		return int(idx.notes[i]), math.Inf(1), true
	}
	// first position whose frequency is >= freq
	lo, hi := 0, idx.n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if t[idx.notes[mid]] < freq {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	above, below := -1, -1
	if lo < idx.n {
		above = lo
	}
	if lo > 0 {
		below = lo - 1
		// equal frequencies are sorted by note; take the lowest of them
		for below > 0 && t[idx.notes[below-1]] == t[idx.notes[below]] {
			below--
		}
	}
	switch {
	case above < 0:
		n := int(idx.notes[below])
		return n, math.Log2(freq / t[n]), true
	case below < 0:
		n := int(idx.notes[above])
		return n, math.Log2(t[n] / freq), true
	}
	na, nb := int(idx.notes[above]), int(idx.notes[below])
	da, db := math.Log2(t[na]/freq), math.Log2(freq/t[nb])
	if da < db || (da == db && na < nb) {
		return na, da, true
	}
	return nb, db, true
}
