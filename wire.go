package tunesync

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// The binary snapshot format is used to carry tunings between processes:
//
//	"TSNP" | format (1) | name length (1) | name | in-use mask (uint16 LE) |
//	global table (128 float64 LE) | one table per in-use channel, ascending
const (
	wireMagic   = "TSNP"
	wireFormat  = 1
	maxNameSize = 255
	tableSize   = NumNotes * 8
)

var ErrWireFormat = errors.New("tunesync: invalid snapshot encoding")

// AppendBinary appends the binary encoding of the snapshot to buf. The
// version is not encoded and names longer than 255 bytes are truncated.
func (s *Snapshot) AppendBinary(buf []byte) ([]byte, error) {
	name := s.name
	if len(name) > maxNameSize {
		name = name[:maxNameSize]
	}
	buf = append(buf, wireMagic...)
	buf = append(buf, wireFormat, byte(len(name)))
	buf = append(buf, name...)
	var mask uint16
	for i, t := range s.channels {
		if t != nil {
			mask |= 1 << i
		}
	}
	buf = binary.LittleEndian.AppendUint16(buf, mask)
	buf = appendTable(buf, s.global)
	for _, t := range s.channels {
		if t != nil {
			buf = appendTable(buf, t)
		}
	}
	return buf, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, len(wireMagic)+4+len(s.name)+tableSize*(1+s.NumChannelsInUse())))
}

// DecodeSnapshot decodes a snapshot encoded with AppendBinary. The returned
// snapshot has version 0.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	if len(data) < len(wireMagic)+2 || string(data[:len(wireMagic)]) != wireMagic {
		return nil, ErrWireFormat
	}
	data = data[len(wireMagic):]
	if data[0] != wireFormat {
		return nil, fmt.Errorf("%w: unknown format %d", ErrWireFormat, data[0])
	}
	nameLen := int(data[1])
	data = data[2:]
	if len(data) < nameLen+2 {
		return nil, fmt.Errorf("%w: truncated header", ErrWireFormat)
	}
	b := NewBuilder(nil)
	b.SetName(string(data[:nameLen]))
	data = data[nameLen:]
	mask := binary.LittleEndian.Uint16(data)
	data = data[2:]
	var err error
	if data, err = readTable(data, b.Table(NoChannel)); err != nil {
		return nil, err
	}
	for i := 0; i < NumChannels; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		if data, err = readTable(data, b.Table(i)); err != nil {
			return nil, err
		}
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrWireFormat, len(data))
	}
	return b.Build(0), nil
}

func appendTable(buf []byte, t *Table) []byte {
	for _, f := range t {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
	}
	return buf
}

func readTable(data []byte, t *Table) ([]byte, error) {
	if len(data) < tableSize {
		return nil, fmt.Errorf("%w: truncated table", ErrWireFormat)
	}
	for i := range t {
		f := math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		if !(f > 0) {
			f = Unmapped
		}
		t[i] = f
	}
	return data[tableSize:], nil
}
