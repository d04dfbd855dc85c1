package commands

import (
	"github.com/spf13/cobra"

	"github.com/sdv-broker/databroker/cmd/databrokerctl/cmdutil"
)

var actuateKind string

var actuateCmd = &cobra.Command{
	Use:   "actuate PATH VALUE",
	Short: "Request an actuator target change",
	Long: `Request a change to an actuator's target value (spec.md's
actuation path — a request to a provider, not a direct datapoint write).

Examples:
  databrokerctl actuate Vehicle.Cabin.Door.Row1.Left.IsOpen --kind bool true
  databrokerctl actuate Vehicle.Body.Windshield.Wiping.Mode --kind string WIPE_FRONT`,
	Args: cobra.ExactArgs(2),
	RunE: runActuate,
}

func init() {
	actuateCmd.Flags().StringVar(&actuateKind, "kind", "double", "VSS scalar kind of VALUE (bool, string, int8..int64, uint8..uint64, float, double)")
}

func runActuate(cmd *cobra.Command, args []string) error {
	path, literal := args[0], args[1]

	value, err := cmdutil.ParseScalarValue(actuateKind, literal)
	if err != nil {
		return err
	}

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Actuate(cmdutil.Background(), path, value); err != nil {
		return err
	}

	cmdutil.PrintSuccess("actuation request sent for " + path)
	return nil
}
