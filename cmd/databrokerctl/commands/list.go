package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sdv-broker/databroker/cmd/databrokerctl/cmdutil"
)

var listCmd = &cobra.Command{
	Use:   "list [PATTERN]",
	Short: "List registered signals and their metadata",
	Long: `List every signal matching a VSS glob pattern (default "**", every
registered signal), showing its static definition.

Examples:
  databrokerctl list
  databrokerctl list "Vehicle.Cabin.**"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

type metadataRow struct {
	Path        string `json:"path" yaml:"path"`
	DataType    string `json:"data_type" yaml:"data_type"`
	EntryType   string `json:"entry_type" yaml:"entry_type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Unit        string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

type metadataRows []metadataRow

func (r metadataRows) Headers() []string {
	return []string{"PATH", "TYPE", "ENTRY", "UNIT", "DESCRIPTION"}
}

func (r metadataRows) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, row := range r {
		rows = append(rows, []string{row.Path, row.DataType, row.EntryType, row.Unit, row.Description})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	root := "**"
	if len(args) == 1 {
		root = args[0]
	}

	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.ListMetadata(cmdutil.Background(), root)
	if err != nil {
		return err
	}

	rows := make(metadataRows, 0, len(resp.Metadata))
	for _, m := range resp.Metadata {
		rows = append(rows, metadataRow{
			Path:        m.Path,
			DataType:    m.DataType,
			EntryType:   m.EntryType,
			Description: m.Description,
			Unit:        m.Unit,
		})
	}

	return cmdutil.PrintOutput(os.Stdout, len(rows) == 0, "no signals match that pattern", rows)
}
