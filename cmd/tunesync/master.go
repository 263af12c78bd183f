package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vsariola/tunesync"
	"github.com/vsariola/tunesync/cmd"
	"github.com/vsariola/tunesync/link"
	"github.com/vsariola/tunesync/oscbus"
	"github.com/vsariola/tunesync/store"
	"github.com/vsariola/tunesync/sysex"
)

func newMasterCommand(opts *rootOptions) *cobra.Command {
	var (
		listen   string
		useMIDI  bool
		midiName string
	)
	c := &cobra.Command{
		Use:   "master [tuning.yml|tuning.syx]",
		Short: "Broadcast a tuning to every client",
		Long: `Broadcast a tuning to every client subscribed over OSC, sending heartbeats
until interrupted. With --midi, MTS SysEx received from a MIDI input retunes
the broadcast tuning.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			s, err := loadTuning(args)
			if err != nil {
				return err
			}
			if listen == "" {
				listen = opts.cfg.MasterAddr()
			}
			if !c.Flags().Changed("input") {
				midiName = opts.cfg.MIDI.Input
			}
			st := store.New()
			st.Publish(s)
			m := &masterRun{log: opts.log, store: st, heartbeat: opts.cfg.Master.Heartbeat}
			if useMIDI {
				m.listenMIDI = func(handler func([]byte)) (func(), error) {
					return cmd.ListenMIDI(midiName, handler)
				}
			}
			return m.run(c.Context(), listen)
		},
	}
	flags := c.Flags()
	flags.StringVar(&listen, "listen", "", "UDP address to listen on, default host:port of the config")
	flags.BoolVar(&useMIDI, "midi", false, "apply MTS SysEx from a MIDI input")
	flags.StringVar(&midiName, "input", "", "prefix of the MIDI input name, default from the config")
	return c
}

type masterRun struct {
	log        *slog.Logger
	store      *store.Store
	heartbeat  time.Duration
	listenMIDI func(handler func([]byte)) (stop func(), err error) // nil without MIDI
	ready      chan struct{}                                        // closed once the master is broadcasting

	master *link.Master
}

func (m *masterRun) run(ctx context.Context, addr string) error {
	// the socket outlives ctx so that the goodbye gets sent
	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()
	b, err := oscbus.Listen(serveCtx, addr, m.log)
	if err != nil {
		return err
	}
	m.master = link.NewMaster(b, m.log)
	if err := m.master.Publish(m.store.Current()); err != nil {
		return err
	}
	if m.listenMIDI != nil {
		stop, err := m.listenMIDI(m.handleMIDI)
		if err != nil {
			return err
		}
		defer stop()
	}
	m.log.Info("master broadcasting", "addr", b.Addr(), "master", m.master.ID(), "scale", m.store.Current().Name())
	if m.ready != nil {
		close(m.ready)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(b.Serve)
	g.Go(func() error {
		defer stopServe()
		return m.master.Run(gctx, m.heartbeat)
	})
	return g.Wait()
}

// handleMIDI applies MTS SysEx and broadcasts the result. It runs on the MIDI
// driver goroutine.
func (m *masterRun) handleMIDI(msg []byte) {
	u, err := sysex.Decode(msg)
	if errors.Is(err, sysex.ErrNotSysEx) || errors.Is(err, sysex.ErrNotMTS) {
		return
	}
	if err != nil {
		m.store.AddRejected()
		m.log.Warn("rejected SysEx", "err", err)
		return
	}
	s, _ := m.store.Update(func(b *tunesync.Builder) error {
		u.Apply(b)
		return nil
	})
	if err := m.master.Publish(s); err != nil {
		m.log.Warn("could not broadcast tuning", "err", err)
		return
	}
	m.log.Info("retuned", "kind", u.Kind, "scale", s.Name(), "version", s.Version())
}
