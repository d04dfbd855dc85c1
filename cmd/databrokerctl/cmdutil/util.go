// Package cmdutil provides shared utilities for databrokerctl commands:
// global flag handling, a connected-client helper resolving server/token
// from flags or the stored context, and output-format-aware print
// helpers.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sdv-broker/databroker/internal/cli/credentials"
	"github.com/sdv-broker/databroker/internal/cli/output"
	"github.com/sdv-broker/databroker/internal/cli/prompt"
	"github.com/sdv-broker/databroker/pkg/databrokerclient"
	"github.com/sdv-broker/databroker/pkg/grpc/kuksaval"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL string
	Token     string
	TLS       bool
	Output    string
	NoColor   bool
}

// GetClient returns a databrokerclient.Client configured from the
// current context, with --server/--token flag overrides taking
// precedence over stored credentials.
func GetClient() (*databrokerclient.Client, error) {
	url := Flags.ServerURL
	token := Flags.Token

	if url == "" || token == "" {
		store, err := credentials.NewStore()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize credential store: %w", err)
		}
		ctx, err := store.GetCurrentContext()
		if err != nil {
			return nil, credentials.ErrNotLoggedIn
		}
		if url == "" {
			url = ctx.ServerURL
		}
		if token == "" {
			token = ctx.AccessToken
		}
	}

	if url == "" {
		return nil, fmt.Errorf("no server address configured; run 'databrokerctl context set' first")
	}

	return databrokerclient.Dial(url, token, Flags.TLS)
}

// Background returns the context used for one-shot RPCs.
func Background() context.Context {
	return context.Background()
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput prints data in the configured format, falling back to
// emptyMsg for an empty table result.
func PrintOutput(w io.Writer, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, tableRenderer)
	case output.FormatYAML:
		return output.PrintYAML(w, tableRenderer)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintSuccess prints a success message in table mode only.
func PrintSuccess(msg string) {
	format, err := GetOutputFormatParsed()
	if err != nil || format != output.FormatTable {
		return
	}
	output.NewPrinter(os.Stdout, format, !Flags.NoColor).Success(msg)
}

// BoolToYesNo converts a boolean to "yes" or "no" string.
func BoolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// HandleAbort turns a prompt abort (Ctrl+C) into a clean nil return.
func HandleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}

// ParseScalarValue builds a kuksaval.Value from a VSS kind name and a
// literal string, covering the scalar kinds a CLI invocation can type;
// array-valued writes are out of scope for single-flag input and must go
// through a provider's PublishValues stream instead.
func ParseScalarValue(kind, literal string) (*kuksaval.Value, error) {
	v := &kuksaval.Value{Kind: kind}
	switch kind {
	case "bool":
		b := literal == "true" || literal == "1"
		v.Bool = &b
	case "string":
		v.String = &literal
	case "int8", "int16", "int32", "int64":
		var i int64
		if _, err := fmt.Sscanf(literal, "%d", &i); err != nil {
			return nil, fmt.Errorf("invalid int value %q: %w", literal, err)
		}
		v.Int = &i
	case "uint8", "uint16", "uint32", "uint64":
		var u uint64
		if _, err := fmt.Sscanf(literal, "%d", &u); err != nil {
			return nil, fmt.Errorf("invalid uint value %q: %w", literal, err)
		}
		v.Uint = &u
	case "float":
		var f float32
		if _, err := fmt.Sscanf(literal, "%g", &f); err != nil {
			return nil, fmt.Errorf("invalid float value %q: %w", literal, err)
		}
		v.Float = &f
	case "double":
		var d float64
		if _, err := fmt.Sscanf(literal, "%g", &d); err != nil {
			return nil, fmt.Errorf("invalid double value %q: %w", literal, err)
		}
		v.Double = &d
	default:
		return nil, fmt.Errorf("unsupported --kind %q", kind)
	}
	return v, nil
}
