package tunesync

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"gopkg.in/yaml.v3"
)

type (
	// Document is the YAML description of a tuning used by the tools and the
	// test fixtures. The parts of a table are applied in order: Octave, Cents,
	// Notes and finally Unmapped. A channel starts from the finished global
	// table.
	Document struct {
		Name          string `yaml:",omitempty"`
		TableDocument `yaml:",inline"`
		Channels      map[int]TableDocument `yaml:",omitempty"`
	}

	TableDocument struct {
		// Octave gives 12 offsets in cents, one for each pitch class starting
		// from C, applied to every octave.
		Octave   []float64       `yaml:",flow,omitempty"`
		Cents    map[int]float64 `yaml:",omitempty"` // note -> offset from 12-TET in cents
		Notes    map[int]float64 `yaml:",omitempty"` // note -> Hz
		Unmapped []int           `yaml:",flow,omitempty"`
	}
)

// ReadDocument decodes a YAML tuning document. Unknown fields are errors.
func ReadDocument(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("could not decode tuning document: %w", err)
	}
	return &doc, nil
}

// WriteDocument encodes the document as YAML.
func WriteDocument(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("could not encode tuning document: %w", err)
	}
	return enc.Close()
}

// Snapshot builds a version 0 snapshot out of the document, starting from
// 12-TET.
func (d *Document) Snapshot() (*Snapshot, error) {
	b := NewBuilder(nil)
	if err := d.Apply(b); err != nil {
		return nil, err
	}
	return b.Build(0), nil
}

// Apply applies the document onto a builder.
func (d *Document) Apply(b *Builder) error {
	if d.Name != "" {
		b.SetName(d.Name)
	}
	if err := d.TableDocument.apply(b, NoChannel); err != nil {
		return err
	}
	channels := make([]int, 0, len(d.Channels))
	for ch := range d.Channels {
		channels = append(channels, ch)
	}
	sort.Ints(channels)
	for _, ch := range channels {
		if !validChannel(ch) {
			return fmt.Errorf("channel %d out of range 0..%d", ch, NumChannels-1)
		}
		td := d.Channels[ch]
		b.Table(ch)
		if err := td.apply(b, ch); err != nil {
			return fmt.Errorf("channel %d: %w", ch, err)
		}
	}
	return nil
}

func (td *TableDocument) apply(b *Builder, channel int) error {
	if len(td.Octave) != 0 && len(td.Octave) != 12 {
		return fmt.Errorf("octave needs 12 offsets, got %d", len(td.Octave))
	}
	for note, c := range td.Cents {
		if note < 0 || note >= NumNotes {
			return fmt.Errorf("note %d out of range", note)
		}
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("note %d: invalid offset", note)
		}
	}
	for note, f := range td.Notes {
		if note < 0 || note >= NumNotes {
			return fmt.Errorf("note %d out of range", note)
		}
		if !(f > 0) || math.IsInf(f, 1) {
			return fmt.Errorf("note %d: frequency must be positive, got %v", note, f)
		}
	}
	for _, note := range td.Unmapped {
		if note < 0 || note >= NumNotes {
			return fmt.Errorf("unmapped note %d out of range", note)
		}
	}
	t := b.Table(channel)
	if len(td.Octave) == 12 {
		for note := range t {
			t[note] = EqualTemperament(float64(note) + td.Octave[note%12]/100)
		}
	}
	for note, c := range td.Cents {
		t[note] = EqualTemperament(float64(note) + c/100)
	}
	for note, f := range td.Notes {
		t[note] = f
	}
	for _, note := range td.Unmapped {
		t[note] = Unmapped
	}
	return nil
}

// NewDocument describes a snapshot with explicit frequencies. Global notes
// that are exactly 12-TET, and channel notes that equal the global table, are
// left out.
func NewDocument(s *Snapshot) *Document {
	doc := &Document{Name: s.name, TableDocument: describeTable(s.global, &equalTempered)}
	for ch, t := range s.channels {
		if t == nil {
			continue
		}
		if doc.Channels == nil {
			doc.Channels = map[int]TableDocument{}
		}
		doc.Channels[ch] = describeTable(t, s.global)
	}
	return doc
}

func describeTable(t, base *Table) TableDocument {
	var td TableDocument
	for note, f := range t {
		switch {
		case !(f > 0):
			if base[note] > 0 {
				td.Unmapped = append(td.Unmapped, note)
			}
		case f != base[note]:
			if td.Notes == nil {
				td.Notes = map[int]float64{}
			}
			td.Notes[note] = f
		}
	}
	return td
}
