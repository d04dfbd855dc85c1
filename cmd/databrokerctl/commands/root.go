// Package commands implements the databrokerctl client CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/sdv-broker/databroker/cmd/databrokerctl/cmdutil"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "databrokerctl",
	Short: "databrokerctl - a client for the Vehicle Signal Specification signal broker",
	Long: `databrokerctl reads and writes Vehicle Signal Specification signals,
manages actuation, and inspects a running databroker server over the
kuksa.val.v2 gRPC service.

Use "databrokerctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and executes it.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command, for testing.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cmdutil.Flags.ServerURL, "server", "", "databroker gRPC address (overrides the stored context)")
	rootCmd.PersistentFlags().StringVar(&cmdutil.Flags.Token, "token", "", "bearer token (overrides the stored context)")
	rootCmd.PersistentFlags().BoolVar(&cmdutil.Flags.TLS, "tls", false, "use TLS when connecting")
	rootCmd.PersistentFlags().StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(actuateCmd)
}
