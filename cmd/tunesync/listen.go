package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/vsariola/tunesync/client"
	"github.com/vsariola/tunesync/cmd"
	"github.com/vsariola/tunesync/oscbus"
	"github.com/vsariola/tunesync/report"
	"github.com/vsariola/tunesync/sysex"
	"github.com/vsariola/tunesync/version"
)

func newListenCommand(opts *rootOptions) *cobra.Command {
	var (
		noMaster bool
		useMIDI  bool
		midiName string
		poll     time.Duration
	)
	c := &cobra.Command{
		Use:   "listen",
		Short: "Follow the shared tuning like a plugin would",
		Long: `Follow the tuning of a master, and with --midi of MTS SysEx received from a
MIDI input, printing a summary every time the tuning changes.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg := client.Config{Link: opts.cfg.LinkConfig(opts.log), Logger: opts.log}
			if !noMaster {
				cfg.Dial = client.DialOSC(oscbus.SubscriberConfig{
					Master:      opts.cfg.MasterAddr(),
					Client:      version.Agent("tunesync-listen"),
					Resubscribe: opts.cfg.Master.Heartbeat,
					Logger:      opts.log,
				})
			}
			cl := client.NewRegistry(cfg).Register()
			defer cl.Deregister()
			if useMIDI {
				if !c.Flags().Changed("input") {
					midiName = opts.cfg.MIDI.Input
				}
				stop, err := cmd.ListenMIDI(midiName, func(msg []byte) { parseMIDI(opts.log, cl, msg) })
				if err != nil {
					return err
				}
				defer stop()
			}
			return follow(c.Context(), cl, c.OutOrStdout(), poll)
		},
	}
	flags := c.Flags()
	flags.BoolVar(&noMaster, "no-master", false, "do not subscribe to a master")
	flags.BoolVar(&useMIDI, "midi", false, "apply MTS SysEx from a MIDI input")
	flags.StringVar(&midiName, "input", "", "prefix of the MIDI input name, default from the config")
	flags.DurationVar(&poll, "poll", 50*time.Millisecond, "how often the tuning is checked for changes")
	return c
}

func parseMIDI(log *slog.Logger, cl *client.Client, msg []byte) {
	err := cl.ParseMIDIData(msg)
	switch {
	case err == nil, errors.Is(err, sysex.ErrNotSysEx), errors.Is(err, sysex.ErrNotMTS):
	case errors.Is(err, client.ErrMasterPresent):
		log.Debug("SysEx ignored", "err", err)
	default:
		log.Warn("rejected SysEx", "err", err)
	}
}

// follow prints the tuning of the client whenever its version or the presence
// of the master changes, until ctx is done.
func follow(ctx context.Context, cl *client.Client, w io.Writer, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	var (
		last      uint64
		hadMaster bool
		printed   bool
	)
	for {
		s := cl.Snapshot()
		if hasMaster := cl.HasMaster(); hasMaster != hadMaster || !printed {
			hadMaster = hasMaster
			state := "absent"
			if hasMaster {
				state = "present"
			}
			if _, err := fmt.Fprintf(w, "master:   %s\n", state); err != nil {
				return err
			}
		}
		if !printed || s.Version() != last {
			last, printed = s.Version(), true
			if err := report.WriteSummary(w, s); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
