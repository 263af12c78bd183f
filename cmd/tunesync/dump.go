package main

import (
	"github.com/spf13/cobra"

	"github.com/vsariola/tunesync"
	"github.com/vsariola/tunesync/report"
)

func newDumpCommand(opts *rootOptions) *cobra.Command {
	var (
		notes   bool
		channel int
		asYaml  bool
	)
	c := &cobra.Command{
		Use:   "dump [tuning.yml|tuning.syx]",
		Short: "Describe a tuning",
		Long: `Describe a tuning read from a YAML document or from MTS SysEx messages.
Without a file the 12-TET default is described.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			s, err := loadTuning(args)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			switch {
			case asYaml:
				return tunesync.WriteDocument(out, tunesync.NewDocument(s))
			case notes:
				return report.WriteNotes(out, s, channel)
			default:
				return report.WriteSummary(out, s)
			}
		},
	}
	flags := c.Flags()
	flags.BoolVar(&notes, "notes", false, "list every note instead of the summary")
	flags.IntVarP(&channel, "channel", "c", tunesync.NoChannel, "MIDI channel 0-15 of the note list, -1 for the global table")
	flags.BoolVar(&asYaml, "yaml", false, "print the tuning as a YAML document")
	return c
}
