package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vsariola/tunesync/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(c.OutOrStdout(), version.Agent("tunesync"))
			return err
		},
	}
}
