package sysex

import (
	"errors"
	"math"

	"gitlab.com/gomidi/midi/v2"

	"github.com/vsariola/tunesync"
)

// MaxChanges is the most note changes one single note message can carry.
const MaxChanges = 127

var ErrTooManyChanges = errors.New("sysex: too many note changes in one message")

// EncodeBulkDump encodes a non-realtime bulk tuning dump of a table. Unmapped
// notes encode as NoChange.
func EncodeBulkDump(device, program byte, name string, t *tunesync.Table) midi.Message {
	p := make([]byte, 0, 5+nameSize+3*tunesync.NumNotes+1)
	p = append(p, nonRealtime, device&0x7F, mtsID, 0x01, program&0x7F)
	p = appendName(p, name)
	p = appendTable(p, t)
	return midi.SysEx(append(p, checksum(p)))
}

// EncodeKeyBasedDump encodes a non-realtime key-based tuning dump of a table.
func EncodeKeyBasedDump(device, bank, program byte, name string, t *tunesync.Table) midi.Message {
	p := make([]byte, 0, 6+nameSize+3*tunesync.NumNotes+1)
	p = append(p, nonRealtime, device&0x7F, mtsID, 0x04, bank&0x7F, program&0x7F)
	p = appendName(p, name)
	p = appendTable(p, t)
	return midi.SysEx(append(p, checksum(p)))
}

// EncodeSingleNote encodes a realtime single note tuning change.
func EncodeSingleNote(device, program byte, changes []NoteChange) (midi.Message, error) {
	if len(changes) > MaxChanges {
		return nil, ErrTooManyChanges
	}
	p := make([]byte, 0, 6+4*len(changes))
	p = append(p, realtime, device&0x7F, mtsID, 0x02, program&0x7F)
	return midi.SysEx(appendChanges(p, changes)), nil
}

// EncodeSingleNoteBank encodes a single note tuning change with bank select,
// either realtime or not.
func EncodeSingleNoteBank(device byte, rt bool, bank, program byte, changes []NoteChange) (midi.Message, error) {
	if len(changes) > MaxChanges {
		return nil, ErrTooManyChanges
	}
	p := make([]byte, 0, 7+4*len(changes))
	p = append(p, subID1(rt), device&0x7F, mtsID, 0x07, bank&0x7F, program&0x7F)
	return midi.SysEx(appendChanges(p, changes)), nil
}

// EncodeScaleOctave encodes a scale/octave tuning of the channels in the
// mask. Offsets are in cents; the one byte form has a resolution of 1 cent
// in -64...+63, the two byte form about 0.012 cents in -100...+100.
func EncodeScaleOctave(device byte, rt, twoByte bool, channels uint16, offsets [12]float64) midi.Message {
	sub := byte(0x08)
	if twoByte {
		sub = 0x09
	}
	p := make([]byte, 0, 7+24)
	p = append(p, subID1(rt), device&0x7F, mtsID, sub,
		byte(channels>>14)&0x03, byte(channels>>7)&0x7F, byte(channels)&0x7F)
	return midi.SysEx(appendOffsets(p, offsets, twoByte))
}

// EncodeScaleOctaveDump encodes a non-realtime scale/octave tuning dump.
func EncodeScaleOctaveDump(device byte, twoByte bool, bank, preset byte, name string, offsets [12]float64) midi.Message {
	sub := byte(0x05)
	if twoByte {
		sub = 0x06
	}
	p := make([]byte, 0, 6+nameSize+24+1)
	p = append(p, nonRealtime, device&0x7F, mtsID, sub, bank&0x7F, preset&0x7F)
	p = appendName(p, name)
	p = appendOffsets(p, offsets, twoByte)
	return midi.SysEx(append(p, checksum(p)))
}

// OctaveOffsets returns the offsets from 12-TET, in cents, of the octave
// starting from the given C. Unmapped notes have a zero offset.
func OctaveOffsets(t *tunesync.Table, c int) (ret [12]float64) {
	for i := range ret {
		note := c + i
		if note < 0 || note >= tunesync.NumNotes || !t.Mapped(note) {
			continue
		}
		ret[i] = 1200 * math.Log2(t[note]/tunesync.EqualTempered(note))
	}
	return
}

func subID1(rt bool) byte {
	if rt {
		return realtime
	}
	return nonRealtime
}

func appendName(p []byte, name string) []byte {
	for i := 0; i < nameSize; i++ {
		c := byte(' ')
		if i < len(name) {
			c = name[i]
			if c < 0x20 || c >= 0x7F {
				c = '?'
			}
		}
		p = append(p, c)
	}
	return p
}

func appendTable(p []byte, t *tunesync.Table) []byte {
	for _, f := range t {
		p = EncodePitch(f).append(p)
	}
	return p
}

func appendChanges(p []byte, changes []NoteChange) []byte {
	p = append(p, byte(len(changes)))
	for _, c := range changes {
		p = append(p, c.Note&0x7F)
		p = c.Pitch.append(p)
	}
	return p
}

func appendOffsets(p []byte, offsets [12]float64, twoByte bool) []byte {
	for _, c := range offsets {
		if twoByte {
			v := clampInt(int(math.Round(c*8192/100))+8192, 0, 16383)
			p = append(p, byte(v>>7), byte(v)&0x7F)
		} else {
			p = append(p, byte(clampInt(int(math.Round(c))+64, 0, 127)))
		}
	}
	return p
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
