// Package client is the API used by plugins to follow the shared tuning.
//
// Every plugin instance registers a Client. All clients of one Registry share
// one store and one link to the master: the first registration creates them
// and the last deregistration tears them down. The query methods are safe to
// call from the audio thread: they do not lock, block or allocate.
//
//	c := client.Register()
//	defer c.Deregister()
//	f := c.NoteToFrequency(note, channel)
package client

import (
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/vsariola/tunesync"
	"github.com/vsariola/tunesync/link"
	"github.com/vsariola/tunesync/oscbus"
	"github.com/vsariola/tunesync/store"
	"github.com/vsariola/tunesync/sysex"
	"github.com/vsariola/tunesync/version"
)

type (
	Config struct {
		// Dial opens the channel to the master when the first client
		// registers. Nil means no master: clients follow only SysEx.
		Dial   func() (link.Channel, error)
		Link   link.Config
		Logger *slog.Logger // nil means slog.Default()
	}

	Registry struct {
		cfg Config
		log *slog.Logger

		mu      sync.Mutex
		state   *shared
		clients map[*Client]struct{}
	}

	// shared is the state of one registration lifetime of a registry.
	shared struct {
		store *store.Store
		link  *link.Link
	}

	Client struct {
		registry     *Registry
		state        *shared
		deregistered atomic.Bool
	}
)

// ErrMasterPresent is returned by ParseMIDIData when the message is not
// applied because a master is present.
var ErrMasterPresent = errors.New("client: SysEx ignored while a master is present")

// Default is the process wide registry, following a master on the local
// machine over OSC.
var Default = NewRegistry(Config{Dial: DialOSC(oscbus.SubscriberConfig{
	Master: net.JoinHostPort("127.0.0.1", strconv.Itoa(oscbus.MasterPort)),
	Client: version.Agent("tunesync-client"),
})})

// Register registers a client with the Default registry.
func Register() *Client { return Default.Register() }

// DialOSC returns a Config.Dial following a master over OSC.
func DialOSC(cfg oscbus.SubscriberConfig) func() (link.Channel, error) {
	return func() (link.Channel, error) {
		return oscbus.NewSubscriber(cfg), nil
	}
}

func NewRegistry(cfg Config) *Registry {
	r := &Registry{cfg: cfg, log: cfg.Logger, clients: map[*Client]struct{}{}}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.cfg.Link.Logger == nil {
		r.cfg.Link.Logger = r.log
	}
	return r
}

// Register adds a client. The first client creates the shared state and
// connects to the master; failing to connect is logged, the client then
// follows SysEx only.
func (r *Registry) Register() *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		r.state = r.start()
	}
	c := &Client{registry: r, state: r.state}
	r.clients[c] = struct{}{}
	return c
}

// Clients returns the number of registered clients.
func (r *Registry) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Registry) start() *shared {
	st := store.New()
	s := &shared{store: st, link: link.New(st, r.cfg.Link)}
	if r.cfg.Dial == nil {
		return s
	}
	ch, err := r.cfg.Dial()
	if err == nil {
		err = s.link.Attach(ch)
	}
	if err != nil {
		r.log.Warn("could not connect to the tuning master", "err", err)
	}
	return s
}

// Deregister removes the client from its registry; the last client
// disconnects from the master. Deregistering again is a no-op. A
// deregistered client keeps answering queries with its last tuning.
func (c *Client) Deregister() {
	if !c.deregistered.CompareAndSwap(false, true) {
		return
	}
	r := c.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	if len(r.clients) == 0 && r.state != nil {
		r.state.link.Detach()
		r.state = nil
	}
}

// HasMaster reports whether a master is currently broadcasting the tuning.
func (c *Client) HasMaster() bool { return c.state.link.HasMaster() }

func (c *Client) ShouldFilterNote(note, channel int) bool {
	return c.state.store.Current().ShouldFilterNote(note, channel)
}

func (c *Client) NoteToFrequency(note, channel int) float64 {
	return c.state.store.Current().NoteToFrequency(note, channel)
}

func (c *Client) RetuningInSemitones(note, channel int) float64 {
	return c.state.store.Current().RetuningInSemitones(note, channel)
}

func (c *Client) RetuningAsRatio(note, channel int) float64 {
	return c.state.store.Current().RetuningAsRatio(note, channel)
}

func (c *Client) FrequencyToNote(freq float64, channel int) int {
	return c.state.store.Current().FrequencyToNote(freq, channel)
}

func (c *Client) FrequencyToNoteAndChannel(freq float64) (note, channel int) {
	return c.state.store.Current().FrequencyToNoteAndChannel(freq)
}

func (c *Client) ScaleName() string { return c.state.store.Current().Name() }

// Snapshot returns the current tuning. Querying one snapshot gives
// consistent answers across a whole audio block.
func (c *Client) Snapshot() *tunesync.Snapshot { return c.state.store.Current() }

func (c *Client) Counters() store.Counters { return c.state.store.Counters() }

// ParseMIDIData applies an MTS SysEx message to the shared tuning. Other
// MIDI data is returned as sysex.ErrNotSysEx or sysex.ErrNotMTS and not
// counted. Malformed tuning messages are counted as rejected; while a master
// is present, tuning messages are counted as ignored and ErrMasterPresent is
// returned.
func (c *Client) ParseMIDIData(buf []byte) error {
	st := c.state.store
	u, err := sysex.Decode(buf)
	if errors.Is(err, sysex.ErrNotSysEx) || errors.Is(err, sysex.ErrNotMTS) {
		return err
	}
	if c.HasMaster() {
		st.AddIgnored()
		return ErrMasterPresent
	}
	if err != nil {
		st.AddRejected()
		return err
	}
	_, err = st.Update(func(b *tunesync.Builder) error {
		u.Apply(b)
		return nil
	})
	return err
}

// ParseMIDIDataSigned is ParseMIDIData for hosts handing out signed bytes.
func (c *Client) ParseMIDIDataSigned(buf []int8) error {
	if len(buf) == 0 {
		return c.ParseMIDIData(nil)
	}
	return c.ParseMIDIData(unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), len(buf)))
}
