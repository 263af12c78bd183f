//go:build !cgo

package cmd

import "errors"

// without cgo there is no MIDI driver
var errNoMIDI = errors.New("MIDI input needs a binary built with cgo")

func MIDIInputs() ([]string, error) {
	return nil, errNoMIDI
}

func ListenMIDI(prefix string, handler func(msg []byte)) (stop func(), err error) {
	return nil, errNoMIDI
}
