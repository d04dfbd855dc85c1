// Command databroker runs the VSS signal broker server: the registry,
// subscription engine, and the kuksa.val.v1/v2 gRPC adapters bound
// together behind the authorized façade.
package main

import (
	"fmt"
	"os"

	"github.com/sdv-broker/databroker/cmd/databroker/commands"
)

// Build-time variables injected via ldflags.
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
