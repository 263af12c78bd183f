// Package report renders human readable descriptions of tunings.
package report

import (
	"embed"
	"fmt"
	"io"
	"math"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/viterin/vek/vek32"

	"github.com/vsariola/tunesync"
)

type (
	// Profile summarizes how far the mapped notes of a table are from 12-TET,
	// in cents.
	Profile struct {
		Mapped         int
		Min, Max, Mean float32
		// Octave is the mean offset of the mapped notes of each pitch class,
		// starting from C.
		Octave [12]float32
	}

	ChannelProfile struct {
		Channel int
		Profile
	}

	Summary struct {
		Name     string
		Version  uint64
		Global   Profile
		Channels []ChannelProfile // channels in use
	}

	Note struct {
		Note      int
		Name      string
		Mapped    bool
		Frequency float64
		Cents     float64 // offset from 12-TET
	}
)

// offsets smaller than this are rounding noise of the float32 math
const centsNoise = 1e-3

//go:embed templates/*.txt
var templateFS embed.FS

var templates = template.Must(template.New("report").Funcs(sprig.TxtFuncMap()).ParseFS(templateFS, "templates/*.txt"))

// NewProfile computes the profile of a table.
func NewProfile(t *tunesync.Table) Profile {
	var freqs, et [tunesync.NumNotes]float32
	var classes [tunesync.NumNotes]int
	n := 0
	for note, f := range t {
		if !(f > 0) {
			continue
		}
		freqs[n] = float32(f)
		et[n] = float32(tunesync.EqualTempered(note))
		classes[n] = note % 12
		n++
	}
	p := Profile{Mapped: n}
	if n == 0 {
		return p
	}
	cents := freqs[:n]
	vek32.Div_Inplace(cents, et[:n])
	vek32.Log10_Inplace(cents)
	vek32.MulNumber_Inplace(cents, float32(1200/math.Log10(2)))
	for i, c := range cents {
		if c > -centsNoise && c < centsNoise {
			cents[i] = 0
		}
	}
	p.Min, p.Max, p.Mean = vek32.Min(cents), vek32.Max(cents), vek32.Mean(cents)
	var sums [12]float32
	var counts [12]int
	for i, c := range cents {
		sums[classes[i]] += c
		counts[classes[i]]++
	}
	for i := range p.Octave {
		if counts[i] > 0 {
			p.Octave[i] = sums[i] / float32(counts[i])
		}
	}
	return p
}

func NewSummary(s *tunesync.Snapshot) Summary {
	g := s.Global()
	ret := Summary{Name: s.Name(), Version: s.Version(), Global: NewProfile(&g)}
	for ch := 0; ch < tunesync.NumChannels; ch++ {
		if t, ok := s.Channel(ch); ok {
			ret.Channels = append(ret.Channels, ChannelProfile{Channel: ch, Profile: NewProfile(&t)})
		}
	}
	return ret
}

// Notes lists every note of a channel as the snapshot resolves it.
func Notes(s *tunesync.Snapshot, channel int) []Note {
	ret := make([]Note, tunesync.NumNotes)
	for i := range ret {
		f := s.NoteToFrequency(i, channel)
		ret[i] = Note{
			Note:      i,
			Name:      tunesync.NoteName(i),
			Mapped:    !s.ShouldFilterNote(i, channel),
			Frequency: f,
			Cents:     1200 * math.Log2(f/tunesync.EqualTempered(i)),
		}
	}
	return ret
}

// WriteSummary writes the summary of a snapshot.
func WriteSummary(w io.Writer, s *tunesync.Snapshot) error {
	if err := templates.ExecuteTemplate(w, "summary", NewSummary(s)); err != nil {
		return fmt.Errorf("could not render summary: %w", err)
	}
	return nil
}

// WriteNotes writes one line per note of a channel.
func WriteNotes(w io.Writer, s *tunesync.Snapshot, channel int) error {
	if err := templates.ExecuteTemplate(w, "notes", Notes(s, channel)); err != nil {
		return fmt.Errorf("could not render notes: %w", err)
	}
	return nil
}
