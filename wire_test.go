package tunesync_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsariola/tunesync"
)

func TestSnapshotBinaryRoundTrip(t *testing.T) {
	b := tunesync.NewBuilder(nil)
	b.SetName("Bohlen-Pierce")
	b.SetFrequency(tunesync.NoChannel, 60, 261)
	b.Unmap(tunesync.NoChannel, 61)
	b.SetFrequency(3, 62, 290)
	b.SetFrequency(15, 62, 291)
	s := b.Build(42)

	data, err := s.MarshalBinary()
	require.NoError(t, err)
	got, err := tunesync.DecodeSnapshot(data)
	require.NoError(t, err)
	assert.True(t, got.Equal(s))
	assert.Equal(t, uint64(0), got.Version())
	assert.True(t, got.ChannelInUse(3))
	assert.True(t, got.ChannelInUse(15))
	assert.False(t, got.ChannelInUse(4))
	assert.True(t, got.ShouldFilterNote(61, -1))
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	data, err := tunesync.Default().MarshalBinary()
	require.NoError(t, err)

	for name, bad := range map[string][]byte{
		"empty":     nil,
		"magic":     append([]byte("XSNP"), data[4:]...),
		"format":    append(append([]byte("TSNP"), 9), data[5:]...),
		"truncated": data[:len(data)-1],
		"trailing":  append(append([]byte{}, data...), 0),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tunesync.DecodeSnapshot(bad)
			assert.ErrorIs(t, err, tunesync.ErrWireFormat)
		})
	}
}
