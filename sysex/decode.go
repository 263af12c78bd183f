// Package sysex decodes and encodes MIDI Tuning Standard (MTS) system
// exclusive messages.
//
// Decoding is stateless: every message is decoded on its own into an Update,
// which is then applied onto a tunesync.Builder, so partial updates always
// layer onto the most recent tuning. Decode does not allocate.
package sysex

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"

	"github.com/vsariola/tunesync"
)

type (
	Kind int

	// NoteChange retunes one note. A NoChange pitch leaves the note alone.
	NoteChange struct {
		Note  uint8
		Pitch Pitch
	}

	// Update is a decoded MTS message.
	Update struct {
		Kind     Kind
		Realtime bool
		Device   byte
		Bank     int // -1 if the message has no bank
		Program  int // -1 if the message has no program / preset

		// Channels is the channel mask of a scale/octave tuning; bit i is MIDI
		// channel i (0-based). Dumps apply to AllChannels.
		Channels uint16

		// Offsets are the scale/octave offsets from 12-TET in cents, starting
		// from C.
		Offsets [12]float64

		NumChanges int
		Changes    [tunesync.NumNotes]NoteChange

		name    [nameSize]byte
		hasName bool
	}
)

const (
	BulkDump         Kind = iota + 1 // non-realtime 08 01
	KeyBasedDump                     // non-realtime 08 04
	ScaleOctaveDump1                 // non-realtime 08 05
	ScaleOctaveDump2                 // non-realtime 08 06
	SingleNote                       // realtime 08 02
	SingleNoteBank                   // 08 07
	ScaleOctave1                     // 08 08
	ScaleOctave2                     // 08 09
)

const (
	AllChannels uint16 = 0xFFFF

	// AllCall is the device ID addressing every device.
	AllCall = 0x7F

	nonRealtime = 0x7E
	realtime    = 0x7F
	mtsID       = 0x08
	nameSize    = 16
)

var (
	ErrNotSysEx    = errors.New("sysex: not a system exclusive message")
	ErrNotMTS      = errors.New("sysex: not a MIDI tuning message")
	ErrUnsupported = errors.New("sysex: unsupported MIDI tuning message")
	ErrLength      = errors.New("sysex: wrong message length")
	ErrChecksum    = errors.New("sysex: checksum mismatch")
	ErrDataByte    = errors.New("sysex: data byte out of range")
)

func (k Kind) String() string {
	switch k {
	case BulkDump:
		return "bulk dump"
	case KeyBasedDump:
		return "key-based tuning dump"
	case ScaleOctaveDump1:
		return "scale/octave tuning dump, 1 byte"
	case ScaleOctaveDump2:
		return "scale/octave tuning dump, 2 byte"
	case SingleNote:
		return "single note tuning change"
	case SingleNoteBank:
		return "single note tuning change with bank"
	case ScaleOctave1:
		return "scale/octave tuning, 1 byte"
	case ScaleOctave2:
		return "scale/octave tuning, 2 byte"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Name returns the tuning name carried by dump messages.
func (u *Update) Name() (string, bool) {
	if !u.hasName {
		return "", false
	}
	return trimName(u.name[:]), true
}

// Decode decodes one MTS message. The buffer may contain the F0 ... F7
// framing or just the bytes in between. An error means the message must be
// ignored as a whole.
func Decode(buf []byte) (u Update, err error) {
	p, err := payload(buf)
	if err != nil {
		return u, err
	}
	if len(p) < 4 {
		if len(p) > 0 && p[0] != nonRealtime && p[0] != realtime {
			return u, ErrNotMTS
		}
		return u, ErrLength
	}
	if (p[0] != nonRealtime && p[0] != realtime) || p[2] != mtsID {
		return u, ErrNotMTS
	}
	for i, b := range p {
		if b >= 0x80 {
			return u, fmt.Errorf("%w: 0x%02X at offset %d", ErrDataByte, b, i)
		}
	}
	u.Realtime = p[0] == realtime
	u.Device = p[1]
	u.Bank, u.Program = -1, -1
	switch sub := p[3]; {
	case !u.Realtime && sub == 0x01:
		u.Kind = BulkDump
		if err := checkDump(p, 5+nameSize+3*tunesync.NumNotes+1); err != nil {
			return u, err
		}
		u.Program = int(p[4])
		u.setName(p[5:])
		u.readTable(p[5+nameSize:])
	case !u.Realtime && sub == 0x04:
		u.Kind = KeyBasedDump
		if err := checkDump(p, 6+nameSize+3*tunesync.NumNotes+1); err != nil {
			return u, err
		}
		u.Bank, u.Program = int(p[4]), int(p[5])
		u.setName(p[6:])
		u.readTable(p[6+nameSize:])
	case !u.Realtime && (sub == 0x05 || sub == 0x06):
		u.Kind, u.Channels = ScaleOctaveDump1, AllChannels
		size := 12
		if sub == 0x06 {
			u.Kind, size = ScaleOctaveDump2, 24
		}
		if err := checkDump(p, 6+nameSize+size+1); err != nil {
			return u, err
		}
		u.Bank, u.Program = int(p[4]), int(p[5])
		u.setName(p[6:])
		u.readOffsets(p[6+nameSize:], sub == 0x06)
	case u.Realtime && sub == 0x02:
		u.Kind = SingleNote
		if len(p) < 6 {
			return u, ErrLength
		}
		u.Program = int(p[4])
		if err := u.readChanges(p[5:]); err != nil {
			return u, err
		}
	case sub == 0x07:
		u.Kind = SingleNoteBank
		if len(p) < 7 {
			return u, ErrLength
		}
		u.Bank, u.Program = int(p[4]), int(p[5])
		if err := u.readChanges(p[6:]); err != nil {
			return u, err
		}
	case sub == 0x08 || sub == 0x09:
		size := 12
		u.Kind = ScaleOctave1
		if sub == 0x09 {
			u.Kind, size = ScaleOctave2, 24
		}
		if len(p) != 7+size {
			return u, ErrLength
		}
		u.Channels = uint16(p[6]) | uint16(p[5])<<7 | uint16(p[4]&0x03)<<14
		u.readOffsets(p[7:], sub == 0x09)
	default:
		return u, fmt.Errorf("%w: sub-ID 0x%02X", ErrUnsupported, sub)
	}
	return u, nil
}

// Apply applies the update onto a builder. Note changes retune the global
// table. Scale/octave tunings rebuild the tables of the channels in the mask
// from 12-TET; with every channel in the mask, the global table and every
// channel table in use are rebuilt.
func (u *Update) Apply(b *tunesync.Builder) {
	switch u.Kind {
	case BulkDump, KeyBasedDump, SingleNote, SingleNoteBank:
		for _, c := range u.Changes[:u.NumChanges] {
			if !c.Pitch.IsNoChange() {
				b.SetFrequency(tunesync.NoChannel, int(c.Note), c.Pitch.Frequency())
			}
		}
	case ScaleOctaveDump1, ScaleOctaveDump2, ScaleOctave1, ScaleOctave2:
		if u.Channels == AllChannels {
			u.fillOctave(b.Table(tunesync.NoChannel))
			for ch := 0; ch < tunesync.NumChannels; ch++ {
				if b.InUse(ch) {
					u.fillOctave(b.Table(ch))
				}
			}
			break
		}
		for ch := 0; ch < tunesync.NumChannels; ch++ {
			if u.Channels&(1<<ch) != 0 {
				u.fillOctave(b.Table(ch))
			}
		}
	}
	if name, ok := u.Name(); ok {
		b.SetName(name)
	}
}

func (u *Update) fillOctave(t *tunesync.Table) {
	for note := range t {
		t[note] = tunesync.EqualTemperament(float64(note) + u.Offsets[note%12]/100)
	}
}

func payload(buf []byte) ([]byte, error) {
	if len(buf) == 0 {
		return nil, ErrNotSysEx
	}
	switch buf[0] {
	case 0xF0:
		var data []byte
		if buf[len(buf)-1] != 0xF7 || !midi.Message(buf).GetSysEx(&data) {
			return nil, fmt.Errorf("%w: unterminated system exclusive message", ErrLength)
		}
		return data, nil
	case nonRealtime, realtime:
		if buf[len(buf)-1] == 0xF7 {
			buf = buf[:len(buf)-1]
		}
		return buf, nil
	}
	return nil, ErrNotSysEx
}

func checkDump(p []byte, size int) error {
	if len(p) != size {
		return ErrLength
	}
	if got, want := p[size-1], checksum(p[:size-1]); got != want {
		return fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrChecksum, got, want)
	}
	return nil
}

// checksum is the XOR of every byte from the sub-ID #1 up to the last data
// byte, masked to 7 bits.
func checksum(p []byte) byte {
	var c byte
	for _, b := range p {
		c ^= b
	}
	return c & 0x7F
}

func (u *Update) setName(b []byte) {
	copy(u.name[:], b[:nameSize])
	u.hasName = true
}

func (u *Update) readTable(b []byte) {
	for note := 0; note < tunesync.NumNotes; note++ {
		u.Changes[note] = NoteChange{Note: uint8(note), Pitch: readPitch(b[3*note:])}
	}
	u.NumChanges = tunesync.NumNotes
}

func (u *Update) readChanges(b []byte) error {
	n := int(b[0])
	b = b[1:]
	if len(b) != 4*n {
		return ErrLength
	}
	for i := 0; i < n; i++ {
		e := b[4*i:]
		u.Changes[i] = NoteChange{Note: e[0], Pitch: readPitch(e[1:])}
	}
	u.NumChanges = n
	return nil
}

func (u *Update) readOffsets(b []byte, twoByte bool) {
	for i := range u.Offsets {
		if twoByte {
			v := int(b[2*i])<<7 | int(b[2*i+1])
			u.Offsets[i] = float64(v-8192) * 100 / 8192
		} else {
			u.Offsets[i] = float64(int(b[i]) - 64)
		}
	}
}

func trimName(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	return string(b[:end])
}
