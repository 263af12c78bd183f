package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsariola/tunesync"
	"github.com/vsariola/tunesync/bus"
	"github.com/vsariola/tunesync/client"
	"github.com/vsariola/tunesync/link"
	"github.com/vsariola/tunesync/oscbus"
	"github.com/vsariola/tunesync/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	c := newRootCommand()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetErr(&out)
	c.SetArgs(args)
	err := c.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	c := newRootCommand()
	for _, name := range []string{"master", "listen", "dump", "sysex", "play", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := c.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "tunesync/"))
}

func TestDump(t *testing.T) {
	out, err := execute(t, "dump", "../../testdata/pythagorean.yml")
	require.NoError(t, err)
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "dump_pythagorean", []byte(out))
}

func TestDumpNotesAndYaml(t *testing.T) {
	out, err := execute(t, "dump", "--notes", "-c", "2", "../../testdata/multichannel.yml")
	require.NoError(t, err)
	assert.Contains(t, out, "C#4  61    unmapped\n")
	assert.Contains(t, out, "A-4  69    440.0000 Hz    +0.00 cents\n")

	out, err = execute(t, "dump", "--yaml", "../../testdata/multichannel.yml")
	require.NoError(t, err)
	doc, err := tunesync.ReadDocument(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "Two manuals", doc.Name)
	assert.Contains(t, doc.Channels, 2)
}

func TestDumpErrors(t *testing.T) {
	_, err := execute(t, "dump", "no-such-file.yml")
	assert.Error(t, err)
	_, err = execute(t, "dump", "--log-level", "loud")
	assert.Error(t, err)
	_, err = execute(t, "dump", "--port", "0")
	assert.Error(t, err)
}

func TestSysExHex(t *testing.T) {
	out, err := execute(t, "sysex", "--form", "octave", "--hex")
	require.NoError(t, err)
	assert.Equal(t, "F07F7F0808037F7F"+strings.Repeat("40", 12)+"F7\n", out)

	_, err = execute(t, "sysex", "--form", "morse")
	assert.ErrorContains(t, err, "unknown form")
}

func TestSysExRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		form, want string
	}{
		{"octave2", "  octave: +0.0 +13.7 +3.9 -5.9 +7.8 -2.0 +11.7 +2.0 +15.6 +5.9 -3.9 +9.8\n"},
		{"bulk", `scale:    "Pythagorean"`},
		{"key", "global: 128 mapped"},
		{"note", "global: 128 mapped"},
	} {
		t.Run(tc.form, func(t *testing.T) {
			file := filepath.Join(dir, tc.form+".syx")
			_, err := execute(t, "sysex", "--form", tc.form, "-o", file, "../../testdata/pythagorean.yml")
			require.NoError(t, err)
			out, err := execute(t, "dump", file)
			require.NoError(t, err)
			assert.Contains(t, out, tc.want)
		})
	}
}

func TestPlayWritesWav(t *testing.T) {
	file := filepath.Join(t.TempDir(), "scale.wav")
	_, err := execute(t, "play", "--length", "10ms", "-o", file, "../../testdata/pythagorean.yml")
	require.NoError(t, err)
	s, err := loadTuning([]string{file})
	assert.Error(t, err, "a wav file is not a tuning document")
	assert.Nil(t, s)

	_, err = execute(t, "play", "--from", "120")
	assert.Error(t, err)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFollowPrintsChanges(t *testing.T) {
	b := bus.New()
	defer b.Close()
	cl := client.NewRegistry(client.Config{Dial: func() (link.Channel, error) { return b, nil }}).Register()
	defer cl.Deregister()

	var out syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- follow(ctx, cl, &out, time.Millisecond) }()
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "master:   absent") }, time.Second, time.Millisecond)

	m := link.NewMaster(b, nil)
	builder := tunesync.NewBuilder(nil)
	builder.SetName("from master")
	require.NoError(t, m.Publish(builder.Build(0)))
	require.Eventually(t, func() bool { return strings.Contains(out.String(), `"from master"`) }, time.Second, time.Millisecond)
	assert.Contains(t, out.String(), "master:   present")

	require.NoError(t, m.Close())
	require.Eventually(t, func() bool { return strings.Count(out.String(), "master:   absent") == 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestMasterRun(t *testing.T) {
	st := store.New()
	b := tunesync.NewBuilder(nil)
	b.SetName("served")
	st.Publish(b.Build(0))
	ready := make(chan struct{})
	m := &masterRun{
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		store:     st,
		heartbeat: 20 * time.Millisecond,
		ready:     ready,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)

	// find a free port for the master
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	require.NoError(t, pc.Close())

	go func() { done <- m.run(ctx, addr) }()
	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("master stopped: %v", err)
	}

	cl := client.NewRegistry(client.Config{Dial: client.DialOSC(oscbus.SubscriberConfig{
		Master:      addr,
		Resubscribe: 20 * time.Millisecond,
	})}).Register()
	defer cl.Deregister()
	require.Eventually(t, func() bool { return cl.ScaleName() == "served" }, 5*time.Second, 5*time.Millisecond)
	assert.True(t, cl.HasMaster())

	cancel()
	require.NoError(t, <-done)
	require.Eventually(t, func() bool { return !cl.HasMaster() }, 5*time.Second, 5*time.Millisecond)
}
