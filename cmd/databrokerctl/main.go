// Command databrokerctl is the client CLI for the databroker server: it
// reads and writes signals, manages actuation, and inspects the running
// broker over the kuksa.val.v2 gRPC adapter.
package main

import (
	"fmt"
	"os"

	"github.com/sdv-broker/databroker/cmd/databrokerctl/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
