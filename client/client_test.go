package client_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsariola/tunesync"
	"github.com/vsariola/tunesync/bus"
	"github.com/vsariola/tunesync/client"
	"github.com/vsariola/tunesync/link"
	"github.com/vsariola/tunesync/sysex"
)

func scaleOctave(cents float64) []byte {
	return sysex.EncodeScaleOctave(sysex.AllCall, true, true, sysex.AllChannels, [12]float64{cents})
}

func TestRegistrySharesState(t *testing.T) {
	r := client.NewRegistry(client.Config{})
	a, b := r.Register(), r.Register()
	assert.Equal(t, 2, r.Clients())
	require.NoError(t, a.ParseMIDIData(scaleOctave(50)))
	assert.InDelta(t, 0.5, b.RetuningInSemitones(60, -1), 1e-6)
	assert.InDelta(t, tunesync.EqualTemperament(60.5), b.NoteToFrequency(60, 3), 1e-6)
	assert.False(t, a.HasMaster())

	a.Deregister()
	a.Deregister()
	assert.Equal(t, 1, r.Clients())
	b.Deregister()
	assert.Equal(t, 0, r.Clients())
	// a deregistered client keeps its last state
	assert.InDelta(t, 0.5, b.RetuningInSemitones(60, -1), 1e-6)

	// registering again starts from scratch
	c := r.Register()
	defer c.Deregister()
	assert.Equal(t, 0.0, c.RetuningInSemitones(60, -1))
	assert.Equal(t, tunesync.DefaultName, c.ScaleName())
}

func TestParseMIDIData(t *testing.T) {
	r := client.NewRegistry(client.Config{})
	c := r.Register()
	defer c.Deregister()

	assert.ErrorIs(t, c.ParseMIDIData([]byte{0x90, 60, 100}), sysex.ErrNotSysEx)
	tbl := tunesync.EqualTemperedTable()
	bad := sysex.EncodeBulkDump(0, 0, "bad", &tbl)
	bad[len(bad)-2] ^= 1
	assert.ErrorIs(t, c.ParseMIDIData(bad), sysex.ErrChecksum)

	tbl[69] = 432
	good := sysex.EncodeBulkDump(0, 0, "A432", &tbl)
	signed := make([]int8, len(good))
	for i, v := range good {
		signed[i] = int8(v)
	}
	require.NoError(t, c.ParseMIDIDataSigned(signed))
	assert.Equal(t, "A432", c.ScaleName())
	assert.InEpsilon(t, 432, c.NoteToFrequency(69, -1), 1e-5)
	assert.Equal(t, 69, c.FrequencyToNote(432, -1))
	n, ch := c.FrequencyToNoteAndChannel(432)
	assert.Equal(t, 69, n)
	assert.Equal(t, 0, ch)
	assert.False(t, c.ShouldFilterNote(69, -1))
	assert.InDelta(t, 432.0/440, c.RetuningAsRatio(69, -1), 1e-5)
	assert.Equal(t, uint64(1), c.Snapshot().Version())

	counters := c.Counters()
	assert.Equal(t, uint64(1), counters.Rejected)
	assert.Equal(t, uint64(1), counters.Published)
	assert.ErrorIs(t, c.ParseMIDIDataSigned(nil), sysex.ErrNotSysEx)
}

func TestMasterOverridesSysEx(t *testing.T) {
	b := bus.New()
	defer b.Close()
	r := client.NewRegistry(client.Config{
		Dial: func() (link.Channel, error) { return b, nil },
	})
	c := r.Register()
	master := link.NewMaster(b, nil)
	builder := tunesync.NewBuilder(nil)
	builder.SetName("from master")
	require.NoError(t, master.Publish(builder.Build(0)))
	require.Eventually(t, func() bool { return c.ScaleName() == "from master" }, time.Second, time.Millisecond)
	assert.True(t, c.HasMaster())

	assert.ErrorIs(t, c.ParseMIDIData(scaleOctave(10)), client.ErrMasterPresent)
	assert.Equal(t, uint64(1), c.Counters().Ignored)
	assert.Equal(t, 0.0, c.RetuningInSemitones(60, -1))

	// the last deregistration detaches from the master
	c.Deregister()
	assert.False(t, c.HasMaster())
	assert.Equal(t, "from master", c.ScaleName())
}

func TestDialFailureIsNotFatal(t *testing.T) {
	r := client.NewRegistry(client.Config{
		Dial: func() (link.Channel, error) { return nil, errors.New("no route to master") },
	})
	c := r.Register()
	defer c.Deregister()
	assert.False(t, c.HasMaster())
	require.NoError(t, c.ParseMIDIData(scaleOctave(-20)))
	assert.InDelta(t, -0.2, c.RetuningInSemitones(72, -1), 1e-3)
}

func TestCorruptedBulkDumpLeavesTuningAlone(t *testing.T) {
	c := client.NewRegistry(client.Config{}).Register()
	defer c.Deregister()
	before := c.Snapshot()
	tbl := tunesync.EqualTemperedTable()
	tbl[69] = 432
	dump := sysex.EncodeBulkDump(0, 0, "A432", &tbl)
	for i := 1; i < len(dump)-1; i++ {
		for bit := 0; bit < 7; bit++ {
			msg := append([]byte(nil), dump...)
			msg[i] ^= 1 << bit
			assert.Error(t, c.ParseMIDIData(msg), "byte %d bit %d", i, bit)
		}
	}
	assert.Same(t, before, c.Snapshot())
	assert.Equal(t, uint64(0), c.Counters().Published)
}

func TestMIDIQueueAppliesSysEx(t *testing.T) {
	c := client.NewRegistry(client.Config{}).Register()
	defer c.Deregister()
	q := client.NewMIDIQueue(c.Parser(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer q.Close()

	tbl := tunesync.EqualTemperedTable()
	tbl[69] = 432
	assert.True(t, q.Push(sysex.EncodeBulkDump(0, 0, "A432", &tbl)))
	require.Eventually(t, func() bool { return c.ScaleName() == "A432" }, time.Second, time.Millisecond)
	assert.InEpsilon(t, 432, c.NoteToFrequency(69, -1), 1e-5)

	assert.False(t, q.Push(nil))
	assert.False(t, q.Push(make([]byte, client.MaxMIDIMessage+1)))
	assert.Equal(t, uint64(2), q.Dropped())
}

func TestMIDIQueuePushDoesNotBlockOrAllocate(t *testing.T) {
	started, release := make(chan struct{}, 1), make(chan struct{})
	q := client.NewMIDIQueue(func([]byte) {
		bus.TrySend(started, struct{}{})
		<-release
	})
	msg := scaleOctave(10)
	require.True(t, q.Push(msg))
	<-started

	// the handler is stuck, so the queue fills up and then drops
	allocs := testing.AllocsPerRun(100, func() { q.Push(msg) })
	assert.Equal(t, 0.0, allocs)
	assert.Greater(t, q.Dropped(), uint64(0))
	close(release)
	q.Close()
	q.Close()
}

func TestMIDIQueueReusesBuffers(t *testing.T) {
	var (
		got  = make(chan []byte, 1)
		last []byte
	)
	q := client.NewMIDIQueue(func(b []byte) { got <- append([]byte(nil), b...) })
	defer q.Close()
	for i := 0; i < 4*client.MIDIQueueLength; i++ {
		msg := []byte{0xF0, byte(i), 0xF7}
		require.True(t, q.Push(msg))
		last = <-got
		assert.Equal(t, msg, last)
	}
	assert.Equal(t, uint64(0), q.Dropped())
}

func TestParserLogsRejectedMessages(t *testing.T) {
	c := client.NewRegistry(client.Config{}).Register()
	defer c.Deregister()
	var out bytes.Buffer
	parse := c.Parser(slog.New(slog.NewTextHandler(&out, nil)))

	tbl := tunesync.EqualTemperedTable()
	bad := sysex.EncodeBulkDump(0, 0, "bad", &tbl)
	bad[len(bad)-2] ^= 1
	parse(bad)
	assert.Contains(t, out.String(), "rejected MTS message")
	assert.Contains(t, out.String(), "checksum")

	out.Reset()
	parse([]byte{0x90, 60, 100})
	assert.Empty(t, out.String())
	assert.Equal(t, tunesync.DefaultName, c.ScaleName())
}
