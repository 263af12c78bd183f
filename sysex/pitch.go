package sysex

import (
	"math"

	"github.com/vsariola/tunesync"
)

// Pitch is the three byte MTS frequency word: a semitone (MIDI note number of
// the equal tempered note at or below the frequency) and a 14-bit fraction of
// a semitone in units of 1/16384.
type Pitch struct {
	Semitone uint8
	Fraction uint16
}

// NoChange is the reserved pitch 7F 7F 7F, meaning "leave the note as it is".
var NoChange = Pitch{Semitone: 0x7F, Fraction: 0x3FFF}

const fractionSteps = 1 << 14

// Frequency converts the pitch into Hz.
func (p Pitch) Frequency() float64 {
	return tunesync.EqualTemperament(float64(p.Semitone) + float64(p.Fraction)/fractionSteps)
}

func (p Pitch) IsNoChange() bool { return p == NoChange }

// EncodePitch finds the closest pitch word to a frequency. Frequencies below
// note 0 are clamped to 00 00 00 and above the top of the range to 7F 7F 7E,
// the highest word that is not NoChange. Unmapped (non-positive) frequencies
// encode as NoChange.
func EncodePitch(freq float64) Pitch {
	if !(freq > 0) {
		return NoChange
	}
	note := tunesync.ReferenceNote + 12*math.Log2(freq/tunesync.ReferenceFrequency)
	if note <= 0 {
		return Pitch{}
	}
	semitone := math.Floor(note)
	fraction := math.Round((note - semitone) * fractionSteps)
	if fraction >= fractionSteps {
		semitone++
		fraction = 0
	}
	if semitone > 127 || (semitone == 127 && fraction > fractionSteps-2) {
		return Pitch{Semitone: 0x7F, Fraction: fractionSteps - 2}
	}
	return Pitch{Semitone: uint8(semitone), Fraction: uint16(fraction)}
}

func (p Pitch) append(buf []byte) []byte {
	return append(buf, p.Semitone&0x7F, byte(p.Fraction>>7)&0x7F, byte(p.Fraction)&0x7F)
}

func readPitch(b []byte) Pitch {
	return Pitch{Semitone: b[0], Fraction: uint16(b[1])<<7 | uint16(b[2])}
}
