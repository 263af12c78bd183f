package oto

import (
	"math"
	"time"

	"github.com/vsariola/tunesync"
)

type (
	// Buffer is stereo audio, one [left, right] pair per frame.
	Buffer [][2]float32

	// Sequence renders notes one after another as sine tones, tuned by a
	// snapshot.
	Sequence struct {
		SampleRate int
		NoteLength time.Duration
		Gain       float32
	}
)

// ramp is the length of the fade in and fade out of each tone
const ramp = 5 * time.Millisecond

func DefaultSequence() Sequence {
	return Sequence{SampleRate: 44100, NoteLength: 400 * time.Millisecond, Gain: 0.3}
}

// Frames returns the length of one note in frames.
func (q Sequence) Frames() int {
	return int(q.NoteLength.Seconds() * float64(q.SampleRate))
}

// Render renders the notes as the snapshot tunes them on the channel. Notes the
// snapshot filters render as silence.
func (q Sequence) Render(s *tunesync.Snapshot, channel int, notes []int) Buffer {
	n := q.Frames()
	buf := make(Buffer, n*len(notes))
	rampFrames := max(int(ramp.Seconds()*float64(q.SampleRate)), 1)
	for i, note := range notes {
		if s.ShouldFilterNote(note, channel) {
			continue
		}
		step := 2 * math.Pi * s.NoteToFrequency(note, channel) / float64(q.SampleRate)
		out := buf[i*n : (i+1)*n]
		for j := range out {
			env := float32(min(j, n-1-j, rampFrames)) / float32(rampFrames)
			v := q.Gain * env * float32(math.Sin(step*float64(j)))
			out[j] = [2]float32{v, v}
		}
	}
	return buf
}

// Scale returns the notes of one octave starting from the given note, both
// ends included.
func Scale(from int) []int {
	notes := make([]int, 13)
	for i := range notes {
		notes[i] = from + i
	}
	return notes
}
