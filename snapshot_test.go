package tunesync_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vsariola/tunesync"
)

func TestBuilderDoesNotModifyBase(t *testing.T) {
	base := tunesync.Default()
	b := tunesync.NewBuilder(base)
	b.SetFrequency(tunesync.NoChannel, 60, 123)
	b.SetFrequency(2, 61, 456)
	b.SetName("changed")
	s := b.Build(5)

	assert.Equal(t, uint64(5), s.Version())
	assert.Equal(t, "changed", s.Name())
	assert.Equal(t, 123.0, s.NoteToFrequency(60, -1))
	assert.Equal(t, 456.0, s.NoteToFrequency(61, 2))
	assert.True(t, s.ChannelInUse(2))
	assert.Equal(t, 1, s.NumChannelsInUse())

	assert.Equal(t, tunesync.DefaultName, base.Name())
	assert.InDelta(t, tunesync.EqualTempered(60), base.NoteToFrequency(60, -1), 1e-9)
	assert.False(t, base.ChannelInUse(2))
}

func TestBuilderKeepsBuiltSnapshotsImmutable(t *testing.T) {
	b := tunesync.NewBuilder(nil)
	b.SetFrequency(tunesync.NoChannel, 60, 100)
	b.SetFrequency(1, 60, 200)
	first := b.Build(1)
	b.SetFrequency(tunesync.NoChannel, 60, 300)
	b.SetFrequency(1, 60, 400)
	second := b.Build(2)

	assert.Equal(t, 100.0, first.NoteToFrequency(60, -1))
	assert.Equal(t, 200.0, first.NoteToFrequency(60, 1))
	assert.Equal(t, 300.0, second.NoteToFrequency(60, -1))
	assert.Equal(t, 400.0, second.NoteToFrequency(60, 1))
}

func TestBuilderClearChannel(t *testing.T) {
	b := tunesync.NewBuilder(nil)
	b.SetFrequency(4, 60, 100)
	s := b.Build(1)
	b = tunesync.NewBuilder(s)
	assert.True(t, b.InUse(4))
	b.ClearChannel(4)
	assert.False(t, b.InUse(4))
	cleared := b.Build(2)
	assert.False(t, cleared.ChannelInUse(4))
	assert.True(t, s.ChannelInUse(4))
}

func TestBuilderIgnoresOutOfRangeNotes(t *testing.T) {
	b := tunesync.NewBuilder(nil)
	b.SetFrequency(tunesync.NoChannel, -1, 100)
	b.SetFrequency(tunesync.NoChannel, 128, 100)
	assert.True(t, b.Build(1).Equal(tunesync.Default()))
}

func TestBuilderNonPositiveUnmaps(t *testing.T) {
	b := tunesync.NewBuilder(nil)
	b.SetFrequency(tunesync.NoChannel, 10, -4)
	s := b.Build(1)
	assert.True(t, s.ShouldFilterNote(10, -1))
	tbl := s.Global()
	assert.Equal(t, tunesync.Unmapped, tbl[10])
	assert.False(t, tbl.Mapped(10))
	assert.Equal(t, 127, tbl.NumMapped())
}

func TestSnapshotEqualIgnoresVersion(t *testing.T) {
	b := tunesync.NewBuilder(nil)
	b.SetFrequency(8, 8, 8)
	assert.True(t, b.Build(1).Equal(b.Build(2)))
	assert.False(t, b.Build(1).Equal(tunesync.Default()))
}

func TestNoteName(t *testing.T) {
	assert.Equal(t, "A-4", tunesync.NoteName(69))
	assert.Equal(t, "C-4", tunesync.NoteName(60))
	assert.Equal(t, "C-Z", tunesync.NoteName(0))
	assert.Equal(t, "G-9", tunesync.NoteName(127))
}
