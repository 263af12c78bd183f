package oscbus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/scgolang/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/vsariola/tunesync"
	"github.com/vsariola/tunesync/link"
	"github.com/vsariola/tunesync/store"
)

func TestEncodeDecode(t *testing.T) {
	b := tunesync.NewBuilder(nil)
	b.SetName("quarter")
	b.SetFrequency(9, 60, tunesync.EqualTemperament(60.5))
	snap := b.Build(3)
	id := uuid.New()
	for _, m := range []link.Message{
		{Kind: link.Tuning, Master: id, Seq: 7, Snapshot: snap},
		{Kind: link.Heartbeat, Master: id, Seq: 7},
		{Kind: link.Goodbye, Master: id},
	} {
		msg, err := encode(m)
		require.NoError(t, err)
		got, err := decode(m.Kind, msg)
		require.NoError(t, err)
		assert.Equal(t, m.Kind, got.Kind)
		assert.Equal(t, m.Master, got.Master)
		assert.Equal(t, m.Seq, got.Seq)
		if m.Snapshot != nil {
			assert.True(t, m.Snapshot.Equal(got.Snapshot))
		}
	}
	_, err := encode(link.Message{Kind: link.Tuning, Master: id})
	assert.Error(t, err)
}

func TestDecodeRejectsBadMessages(t *testing.T) {
	for _, m := range []osc.Message{
		{Address: AddressHeartbeat},
		{Address: AddressHeartbeat, Arguments: osc.Arguments{osc.String("not a uuid"), osc.Int(1)}},
		{Address: AddressTuning, Arguments: osc.Arguments{osc.String(uuid.NewString()), osc.Int(1), osc.Blob([]byte("TSNP"))}},
	} {
		kind := link.Heartbeat
		if m.Address == AddressTuning {
			kind = link.Tuning
		}
		_, err := decode(kind, m)
		assert.Error(t, err, m.Address)
	}
}

func TestLoopback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bc, err := Listen(ctx, "127.0.0.1:0", nil)
	require.NoError(t, err)
	var g errgroup.Group
	g.Go(bc.Serve)

	master := link.NewMaster(bc, nil)
	b := tunesync.NewBuilder(nil)
	b.SetName("loopback")
	b.SetFrequency(tunesync.NoChannel, 69, 432)
	require.NoError(t, master.Publish(b.Build(0)))

	st := store.New()
	l := link.New(st, link.Config{})
	sub := NewSubscriber(SubscriberConfig{
		Master:      bc.Addr().String(),
		Client:      "test",
		Resubscribe: 20 * time.Millisecond,
	})
	require.NoError(t, l.Attach(sub))
	require.Eventually(t, func() bool { return bc.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	// the tuning published before subscribing is resent
	require.Eventually(t, func() bool { return st.Current().Name() == "loopback" }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 432.0, st.Current().NoteToFrequency(69, -1))
	assert.True(t, l.HasMaster())

	b.SetFrequency(tunesync.NoChannel, 69, 433)
	require.NoError(t, master.Publish(b.Build(0)))
	require.Eventually(t, func() bool { return st.Current().NoteToFrequency(69, -1) == 433 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, master.Heartbeat())

	require.NoError(t, master.Close())
	require.Eventually(t, func() bool { return !l.HasMaster() }, 2*time.Second, 5*time.Millisecond)

	l.Detach()
	require.Eventually(t, func() bool { return bc.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, g.Wait())
}
