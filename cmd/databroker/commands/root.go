// Package commands implements the databroker server's CLI.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sdv-broker/databroker/cmd/databroker/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "databroker",
	Short: "databroker - a Vehicle Signal Specification signal broker",
	Long: `databroker stores Vehicle Signal Specification signals and brokers
access to them between providers, consumers, and actuation services over
the kuksa.val.v1 and kuksa.val.v2 gRPC service variants.

Use "databroker [command] --help" for more information about a command.`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/databroker/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(config.Cmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
