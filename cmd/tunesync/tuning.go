package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vsariola/tunesync"
	"github.com/vsariola/tunesync/sysex"
)

// loadTuning reads a tuning from a YAML document or from a file of MTS SysEx
// messages (.syx), which are applied in order onto 12-TET. No file means
// 12-TET.
func loadTuning(args []string) (*tunesync.Snapshot, error) {
	if len(args) == 0 || args[0] == "" {
		return tunesync.Default(), nil
	}
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".syx") {
		s, err := applySysEx(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return s, nil
	}
	doc, err := tunesync.ReadDocument(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s, err := doc.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// applySysEx applies every F0 ... F7 message of data. Messages that are not
// MTS are skipped; malformed tuning messages are errors.
func applySysEx(data []byte) (*tunesync.Snapshot, error) {
	b := tunesync.NewBuilder(nil)
	found := false
	for i := 0; ; i++ {
		start := bytes.IndexByte(data, 0xF0)
		if start < 0 {
			break
		}
		end := bytes.IndexByte(data[start:], 0xF7)
		if end < 0 {
			return nil, fmt.Errorf("message %d: %w", i, sysex.ErrLength)
		}
		msg := data[start : start+end+1]
		data = data[start+end+1:]
		u, err := sysex.Decode(msg)
		if errors.Is(err, sysex.ErrNotMTS) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		u.Apply(b)
		found = true
	}
	if !found {
		return nil, errors.New("no tuning messages found")
	}
	return b.Build(0), nil
}
