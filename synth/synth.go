// Package synth is a small polyphonic sine synth that plays notes in the
// shared tuning. It is the engine of the tunesync VST instrument.
package synth

import (
	"math"
)

type (
	// Tuning resolves notes to frequencies; *tunesync.Snapshot and
	// *client.Client implement it.
	Tuning interface {
		ShouldFilterNote(note, channel int) bool
		NoteToFrequency(note, channel int) float64
	}

	// NoteEvent is a note on or off at a frame of the next block.
	NoteEvent struct {
		Frame    int
		On       bool
		Channel  int
		Note     int
		Velocity int
	}

	Synth struct {
		sampleRate float64
		voices     [NumVoices]voice
		age        int
	}

	voice struct {
		sounding bool
		released bool
		channel  int
		note     int
		step     float64 // phase increment per frame
		phase    float64
		level    float32
		target   float32
		started  int // for stealing the oldest voice
	}
)

const (
	NumVoices = 16
	maxGain   = 0.2
	silence   = 1e-4
)

// attack and release time constants, in seconds
const (
	attack  = 0.005
	release = 0.05
)

func New(sampleRate float64) *Synth {
	return &Synth{sampleRate: sampleRate}
}

// Render renders a block into left and right, applying the events at their
// frames. Events must be sorted by frame; frames outside the block apply at
// its ends. Notes are tuned by t when they start.
func (s *Synth) Render(t Tuning, left, right []float32, events []NoteEvent) {
	attackCoef := float32(1 - math.Exp(-1/(attack*s.sampleRate)))
	releaseCoef := float32(1 - math.Exp(-1/(release*s.sampleRate)))
	for i := range left {
		for len(events) > 0 && events[0].Frame <= i {
			s.handle(t, events[0])
			events = events[1:]
		}
		var out float32
		for j := range s.voices {
			v := &s.voices[j]
			if !v.sounding {
				continue
			}
			coef := attackCoef
			if v.released {
				coef = releaseCoef
			}
			v.level += (v.target - v.level) * coef
			if v.released && v.level < silence {
				v.sounding = false
				continue
			}
			out += v.level * float32(math.Sin(v.phase))
			v.phase += v.step
			if v.phase > 2*math.Pi {
				v.phase -= 2 * math.Pi
			}
		}
		left[i], right[i] = out, out
	}
	for _, e := range events {
		s.handle(t, e)
	}
}

// Retune moves the sounding notes to the frequencies of t. Notes t filters
// are released.
func (s *Synth) Retune(t Tuning) {
	for i := range s.voices {
		v := &s.voices[i]
		if !v.sounding || v.released {
			continue
		}
		if t.ShouldFilterNote(v.note, v.channel) {
			s.release(v)
			continue
		}
		v.step = s.step(t, v.note, v.channel)
	}
}

// Sounding returns the number of voices playing.
func (s *Synth) Sounding() int {
	n := 0
	for _, v := range s.voices {
		if v.sounding {
			n++
		}
	}
	return n
}

func (s *Synth) handle(t Tuning, e NoteEvent) {
	if !e.On || e.Velocity == 0 {
		for i := range s.voices {
			v := &s.voices[i]
			if v.sounding && !v.released && v.note == e.Note && v.channel == e.Channel {
				s.release(v)
			}
		}
		return
	}
	if t.ShouldFilterNote(e.Note, e.Channel) {
		return
	}
	v := s.allocate()
	s.age++
	*v = voice{
		sounding: true,
		channel:  e.Channel,
		note:     e.Note,
		step:     s.step(t, e.Note, e.Channel),
		target:   maxGain * float32(min(e.Velocity, 127)) / 127,
		started:  s.age,
	}
}

// allocate returns a silent voice, else the oldest one.
func (s *Synth) allocate() *voice {
	oldest := &s.voices[0]
	for i := range s.voices {
		v := &s.voices[i]
		if !v.sounding {
			return v
		}
		if v.started < oldest.started {
			oldest = v
		}
	}
	return oldest
}

func (s *Synth) release(v *voice) {
	v.released = true
	v.target = 0
}

func (s *Synth) step(t Tuning, note, channel int) float64 {
	return 2 * math.Pi * t.NoteToFrequency(note, channel) / s.sampleRate
}
