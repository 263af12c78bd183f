package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"

	"github.com/vsariola/tunesync"
	"github.com/vsariola/tunesync/sysex"
)

type sysexOptions struct {
	form     string
	output   string
	hex      bool
	device   uint8
	bank     uint8
	program  uint8
	realtime bool
	octave   int
}

var sysexForms = []string{"bulk", "key", "note", "octave", "octave2", "octave-dump", "octave2-dump"}

func newSysExCommand(opts *rootOptions) *cobra.Command {
	o := &sysexOptions{}
	c := &cobra.Command{
		Use:   "sysex [tuning.yml]",
		Short: "Encode a tuning as MTS SysEx",
		Long: `Encode a tuning as MIDI Tuning Standard SysEx messages.

Forms:
  bulk          bulk tuning dump of the global table
  key           key-based tuning dump of the global table
  note          single note changes of every mapped note of the global table
  octave        1-byte scale/octave tuning, one message for the global
                table and one for each channel table
  octave2       as octave, with 2-byte offsets
  octave-dump   1-byte scale/octave tuning dump of the global table
  octave2-dump  2-byte scale/octave tuning dump of the global table

The scale/octave forms take their offsets from the octave starting at
--octave.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			s, err := loadTuning(args)
			if err != nil {
				return err
			}
			msgs, err := o.encode(s)
			if err != nil {
				return err
			}
			return o.write(c.OutOrStdout(), msgs)
		},
	}
	flags := c.Flags()
	flags.StringVarP(&o.form, "form", "f", "bulk", "message form: "+strings.Join(sysexForms, ", "))
	flags.StringVarP(&o.output, "output", "o", "", "write the messages to a .syx file instead of stdout")
	flags.BoolVar(&o.hex, "hex", false, "print the messages as hex, one per line")
	flags.Uint8Var(&o.device, "device", sysex.AllCall, "device ID")
	flags.Uint8Var(&o.bank, "bank", 0, "tuning bank")
	flags.Uint8Var(&o.program, "program", 0, "tuning program")
	flags.BoolVar(&o.realtime, "realtime", true, "send note and scale/octave changes as realtime messages")
	flags.IntVar(&o.octave, "octave", 60, "first note of the octave the scale/octave offsets are taken from")
	return c
}

func (o *sysexOptions) encode(s *tunesync.Snapshot) ([]midi.Message, error) {
	if o.device > 0x7F || o.bank > 0x7F || o.program > 0x7F {
		return nil, fmt.Errorf("device, bank and program must be in 0..127")
	}
	if o.octave < 0 || o.octave > tunesync.NumNotes-12 {
		return nil, fmt.Errorf("octave must start in 0..%d, got %d", tunesync.NumNotes-12, o.octave)
	}
	global := s.Global()
	switch o.form {
	case "bulk":
		return []midi.Message{sysex.EncodeBulkDump(o.device, o.program, s.Name(), &global)}, nil
	case "key":
		return []midi.Message{sysex.EncodeKeyBasedDump(o.device, o.bank, o.program, s.Name(), &global)}, nil
	case "note":
		return o.noteChanges(&global)
	case "octave", "octave2":
		twoByte := o.form == "octave2"
		msgs := []midi.Message{sysex.EncodeScaleOctave(o.device, o.realtime, twoByte, sysex.AllChannels, sysex.OctaveOffsets(&global, o.octave))}
		for ch := 0; ch < tunesync.NumChannels; ch++ {
			if t, ok := s.Channel(ch); ok {
				msgs = append(msgs, sysex.EncodeScaleOctave(o.device, o.realtime, twoByte, 1<<ch, sysex.OctaveOffsets(&t, o.octave)))
			}
		}
		return msgs, nil
	case "octave-dump", "octave2-dump":
		twoByte := o.form == "octave2-dump"
		return []midi.Message{sysex.EncodeScaleOctaveDump(o.device, twoByte, o.bank, o.program, s.Name(), sysex.OctaveOffsets(&global, o.octave))}, nil
	}
	return nil, fmt.Errorf("unknown form %q, expected one of %s", o.form, strings.Join(sysexForms, ", "))
}

// noteChanges splits the mapped notes into as few messages as possible.
func (o *sysexOptions) noteChanges(t *tunesync.Table) ([]midi.Message, error) {
	var changes []sysex.NoteChange
	for note, f := range t {
		if t.Mapped(note) {
			changes = append(changes, sysex.NoteChange{Note: uint8(note), Pitch: sysex.EncodePitch(f)})
		}
	}
	var msgs []midi.Message
	for len(changes) > 0 {
		n := min(len(changes), sysex.MaxChanges)
		var (
			msg midi.Message
			err error
		)
		if o.bank == 0 && o.realtime {
			msg, err = sysex.EncodeSingleNote(o.device, o.program, changes[:n])
		} else {
			msg, err = sysex.EncodeSingleNoteBank(o.device, o.realtime, o.bank, o.program, changes[:n])
		}
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
		changes = changes[n:]
	}
	return msgs, nil
}

func (o *sysexOptions) write(stdout io.Writer, msgs []midi.Message) (err error) {
	w := stdout
	if o.output != "" {
		f, createErr := os.Create(o.output)
		if createErr != nil {
			return createErr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	for _, msg := range msgs {
		if o.hex {
			_, err = fmt.Fprintln(w, strings.ToUpper(hex.EncodeToString(msg)))
		} else {
			_, err = w.Write(msg)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
