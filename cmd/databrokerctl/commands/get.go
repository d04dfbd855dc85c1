package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdv-broker/databroker/cmd/databrokerctl/cmdutil"
	"github.com/sdv-broker/databroker/pkg/grpc/kuksavalv2"
)

var getCmd = &cobra.Command{
	Use:   "get PATH [PATH...]",
	Short: "Read one or more signal values",
	Long: `Read the current datapoint of one or more signals, addressed by VSS
path.

Examples:
  databrokerctl get Vehicle.Speed
  databrokerctl get Vehicle.Speed Vehicle.Cabin.Door.Row1.Left.IsOpen -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

type signalRow struct {
	Path      string `json:"path" yaml:"path"`
	Value     string `json:"value" yaml:"value"`
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

type signalRows []signalRow

func (r signalRows) Headers() []string { return []string{"PATH", "VALUE", "TIMESTAMP", "ERROR"} }

func (r signalRows) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, row := range r {
		rows = append(rows, []string{row.Path, row.Value, row.Timestamp, row.Error})
	}
	return rows
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmdutil.Background()
	rows := make(signalRows, 0, len(args))
	if len(args) == 1 {
		resp, err := client.GetValue(ctx, args[0])
		if err != nil {
			rows = append(rows, signalRow{Path: args[0], Error: err.Error()})
		} else {
			rows = append(rows, toSignalRow(args[0], resp.Datapoint))
		}
	} else {
		resp, err := client.GetValues(ctx, args)
		if err != nil {
			return err
		}
		for i, path := range args {
			var dp *kuksavalv2.Datapoint
			if i < len(resp.Datapoints) {
				dp = resp.Datapoints[i]
			}
			if dp == nil {
				continue
			}
			rows = append(rows, toSignalRow(path, dp))
		}
		for _, e := range resp.Errors {
			rows = append(rows, signalRow{Path: e.Path, Error: fmt.Sprintf("%s: %s", e.Code, e.Message)})
		}
	}

	return cmdutil.PrintOutput(os.Stdout, len(rows) == 0, "no signals found", rows)
}

func toSignalRow(path string, dp *kuksavalv2.Datapoint) signalRow {
	if dp == nil {
		return signalRow{Path: path, Value: "N/A"}
	}
	return signalRow{Path: path, Value: formatValue(dp.Value), Timestamp: dp.Timestamp}
}

func formatValue(v *kuksavalv2.Value) string {
	if v == nil {
		return "N/A"
	}
	switch {
	case v.Bool != nil:
		return fmt.Sprintf("%t", *v.Bool)
	case v.String != nil:
		return *v.String
	case v.Int != nil:
		return fmt.Sprintf("%d", *v.Int)
	case v.Uint != nil:
		return fmt.Sprintf("%d", *v.Uint)
	case v.Float != nil:
		return fmt.Sprintf("%g", *v.Float)
	case v.Double != nil:
		return fmt.Sprintf("%g", *v.Double)
	case v.BoolArray != nil:
		return fmt.Sprint(v.BoolArray)
	case v.StringArray != nil:
		return fmt.Sprint(v.StringArray)
	case v.IntArray != nil:
		return fmt.Sprint(v.IntArray)
	case v.UintArray != nil:
		return fmt.Sprint(v.UintArray)
	case v.FloatArray != nil:
		return fmt.Sprint(v.FloatArray)
	case v.DoubleArray != nil:
		return fmt.Sprint(v.DoubleArray)
	default:
		return "N/A"
	}
}
