package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vsariola/tunesync/cmd"
)

// rootOptions holds the config shared by every command, after the persistent
// flags have been applied.
type rootOptions struct {
	cfg cmd.Config
	log *slog.Logger

	logLevel string
	host     string
	port     int
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	c := &cobra.Command{
		Use:   "tunesync",
		Short: "Share a microtonal tuning between plugin instances",
		Long: `tunesync broadcasts a tuning from a master to every plugin instance on the
machine, and inspects tunings given as YAML documents or MTS SysEx files.`,
		SilenceUsage: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			return opts.load(c)
		},
	}
	flags := c.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&opts.host, "host", "", "host of the master")
	flags.IntVar(&opts.port, "port", 0, "UDP port of the master")

	c.AddCommand(newMasterCommand(opts))
	c.AddCommand(newListenCommand(opts))
	c.AddCommand(newDumpCommand(opts))
	c.AddCommand(newSysExCommand(opts))
	c.AddCommand(newPlayCommand(opts))
	c.AddCommand(newVersionCommand())
	return c
}

func (o *rootOptions) load(c *cobra.Command) error {
	cfg, err := cmd.LoadConfig()
	if err != nil {
		return err
	}
	flags := c.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("host") {
		cfg.Master.Host = o.host
	}
	if flags.Changed("port") {
		cfg.Master.Port = o.port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	o.log, err = cfg.NewLogger(c.ErrOrStderr())
	return err
}
