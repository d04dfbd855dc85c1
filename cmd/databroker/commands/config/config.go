// Package config implements the "databroker config" subcommand group.
package config

import "github.com/spf13/cobra"

// Cmd is the "config" parent command.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect databroker configuration",
}

func init() {
	Cmd.AddCommand(showCmd)
}
