package tunesync

import "math"

const (
	NumNotes    = 128
	NumChannels = 16

	// NoChannel is used when the MIDI channel of a note is not known. Any
	// value outside 0..15 is treated the same way.
	NoChannel = -1

	ReferenceNote      = 69
	ReferenceFrequency = 440.0

	// Unmapped marks a table entry without a frequency. Every entry that is
	// not strictly positive counts as unmapped.
	Unmapped = 0.0

	// DefaultName is the scale name of the equal tempered default tuning.
	DefaultName = "12-TET"
)

// Table holds one frequency (Hz) per MIDI note.
type Table [NumNotes]float64

var equalTempered = func() (t Table) {
	for i := range t {
		t[i] = EqualTemperament(float64(i))
	}
	return
}()

// EqualTemperament returns the frequency of a (possibly fractional) MIDI
// note in 12-tone equal temperament, A4 = 440 Hz.
func EqualTemperament(note float64) float64 {
	return ReferenceFrequency * math.Pow(2, (note-ReferenceNote)/12)
}

// EqualTempered returns the 12-TET frequency of a MIDI note. Out of range
// notes are clamped.
func EqualTempered(note int) float64 {
	return equalTempered[clampNote(note)]
}

// EqualTemperedTable returns a table with every note mapped to its 12-TET
// frequency.
func EqualTemperedTable() Table {
	return equalTempered
}

// Mapped reports whether the note has a frequency. Out of range notes are
// clamped.
func (t *Table) Mapped(note int) bool {
	return t[clampNote(note)] > 0
}

// NumMapped counts the mapped entries.
func (t *Table) NumMapped() int {
	ret := 0
	for _, f := range t {
		if f > 0 {
			ret++
		}
	}
	return ret
}

func clampNote(note int) int {
	if note < 0 {
		return 0
	}
	if note >= NumNotes {
		return NumNotes - 1
	}
	return note
}

func validChannel(channel int) bool {
	return channel >= 0 && channel < NumChannels
}

// nearestEqualTempered is the fallback of the frequency to note searches
// when no note is mapped.
func nearestEqualTempered(freq float64) int {
	if !(freq > 0) {
		return 0
	}
	n := math.Round(ReferenceNote + 12*math.Log2(freq/ReferenceFrequency))
	if n < 0 {
		return 0
	}
	if n >= NumNotes {
		return NumNotes - 1
	}
	return int(n)
}

var noteNames = [12]string{"C-", "C#", "D-", "D#", "E-", "F-", "F#", "G-", "G#", "A-", "A#", "B-"}

// NoteName formats a MIDI note in the tracker style, e.g. "A-4" for note 69
// and "C-Z" for note 0.
func NoteName(note int) string {
	note = clampNote(note)
	octave := note/12 - 1
	if octave < 0 {
		return noteNames[note%12] + string(byte('Z'+1+octave))
	}
	return noteNames[note%12] + string(byte('0'+octave))
}
