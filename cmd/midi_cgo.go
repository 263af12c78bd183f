//go:build cgo

package cmd

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// MIDIInputs lists the names of the MIDI inputs.
func MIDIInputs() ([]string, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("could not open MIDI driver: %w", err)
	}
	defer driver.Close()
	ins, err := driver.Ins()
	if err != nil {
		return nil, fmt.Errorf("could not list MIDI inputs: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}

// ListenMIDI opens the first MIDI input whose name starts with prefix and
// calls handler with every message received, SysEx included. The handler is
// called from the driver's goroutine.
func ListenMIDI(prefix string, handler func(msg []byte)) (stop func(), err error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("could not open MIDI driver: %w", err)
	}
	ins, err := driver.Ins()
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("could not list MIDI inputs: %w", err)
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), prefix) {
			continue
		}
		if err := in.Open(); err != nil {
			driver.Close()
			return nil, fmt.Errorf("opening MIDI input %q failed: %w", in.String(), err)
		}
		stopListening, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
			handler(msg)
		}, midi.UseSysEx())
		if err != nil {
			in.Close()
			driver.Close()
			return nil, fmt.Errorf("listening to MIDI input %q failed: %w", in.String(), err)
		}
		return func() {
			stopListening()
			in.Close()
			driver.Close()
		}, nil
	}
	driver.Close()
	if prefix == "" {
		return nil, errors.New("could not find any MIDI input")
	}
	return nil, fmt.Errorf("could not find any MIDI input starting with %q", prefix)
}
