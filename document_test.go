package tunesync_test

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsariola/tunesync"
)

func readFixture(t *testing.T, name string) *tunesync.Snapshot {
	t.Helper()
	f, err := os.Open("testdata/" + name)
	require.NoError(t, err)
	defer f.Close()
	doc, err := tunesync.ReadDocument(f)
	require.NoError(t, err)
	s, err := doc.Snapshot()
	require.NoError(t, err)
	return s
}

func TestReadDocumentOctave(t *testing.T) {
	s := readFixture(t, "pythagorean.yml")
	assert.Equal(t, "Pythagorean", s.Name())
	assert.InDelta(t, tunesync.EqualTempered(62)*1.0022611, s.NoteToFrequency(62, -1), 1e-3)
	assert.InDelta(t, 3.91, 100*s.RetuningInSemitones(74, -1), 1e-9)
	assert.InDelta(t, 0, s.RetuningInSemitones(60, -1), 1e-12)
	for _, n := range []int{0, 1, 2, 127} {
		assert.True(t, s.ShouldFilterNote(n, -1), "note %d", n)
	}
	assert.False(t, s.ShouldFilterNote(3, -1))
	assert.Zero(t, s.NumChannelsInUse())
}

func TestReadDocumentChannels(t *testing.T) {
	s := readFixture(t, "multichannel.yml")
	assert.Equal(t, 432.0, s.NoteToFrequency(69, -1))
	assert.InDelta(t, -0.13686, s.RetuningInSemitones(60, -1), 1e-9)
	assert.True(t, s.ChannelInUse(2))
	assert.True(t, s.ChannelInUse(9))
	assert.False(t, s.ChannelInUse(3))
	// channel 2 is rebuilt from 12-TET by its octave
	assert.InDelta(t, tunesync.EqualTempered(69), s.NoteToFrequency(69, 2), 1e-9)
	assert.InDelta(t, 0.5, s.RetuningInSemitones(71, 2), 1e-9)
	assert.True(t, s.ShouldFilterNote(61, 2))
	assert.False(t, s.ShouldFilterNote(61, -1))
	// channel 9 is a copy of the global table
	assert.Equal(t, 432.0, s.NoteToFrequency(69, 9))
}

func TestReadDocumentErrors(t *testing.T) {
	for name, src := range map[string]string{
		"unknown field": "scale: foo\n",
		"short octave":  "octave: [1, 2]\n",
		"note range":    "notes: {128: 100}\n",
		"negative freq": "notes: {60: -1}\n",
		"channel range": "channels: {16: {}}\n",
		"unmapped":      "unmapped: [-1]\n",
	} {
		t.Run(name, func(t *testing.T) {
			doc, err := tunesync.ReadDocument(strings.NewReader(src))
			if err == nil {
				_, err = doc.Snapshot()
			}
			assert.Error(t, err)
		})
	}
}

func TestEmptyDocumentIsDefault(t *testing.T) {
	doc, err := tunesync.ReadDocument(strings.NewReader(""))
	require.NoError(t, err)
	s, err := doc.Snapshot()
	require.NoError(t, err)
	assert.True(t, s.Equal(tunesync.Default()))
}

func TestDocumentRoundTrip(t *testing.T) {
	s := readFixture(t, "multichannel.yml")
	var buf bytes.Buffer
	require.NoError(t, tunesync.WriteDocument(&buf, tunesync.NewDocument(s)))
	doc, err := tunesync.ReadDocument(&buf)
	require.NoError(t, err)
	got, err := doc.Snapshot()
	require.NoError(t, err)
	assert.True(t, got.Equal(s))
}
