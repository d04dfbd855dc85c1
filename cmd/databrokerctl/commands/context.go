package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdv-broker/databroker/cmd/databrokerctl/cmdutil"
	"github.com/sdv-broker/databroker/internal/cli/credentials"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage databrokerctl server contexts",
}

var contextSetCmd = &cobra.Command{
	Use:   "set NAME --server ADDRESS [--token TOKEN]",
	Short: "Create or update a context",
	Long: `Create or update a named context: the gRPC address of a databroker
server and, if the server has authentication enabled, an externally
issued bearer token. databrokerctl has no login flow of its own — tokens
come from whatever identity provider issues the broker's JWTs — so this
command stores a token you already hold rather than obtaining one.

Examples:
  databrokerctl context set default --server localhost:55555 --token "$TOKEN"
  databrokerctl context set prod --server broker.example.com:55555 --tls`,
	Args: cobra.ExactArgs(1),
	RunE: runContextSet,
}

var contextUseCmd = &cobra.Command{
	Use:   "use NAME",
	Short: "Switch the current context",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextUse,
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured contexts",
	RunE:  runContextList,
}

var (
	contextServer string
	contextToken  string
	contextTTL    time.Duration
)

func init() {
	contextSetCmd.Flags().StringVar(&contextServer, "server", "", "gRPC address of the databroker server (required)")
	contextSetCmd.Flags().StringVar(&contextToken, "token", "", "bearer token to store for this context")
	contextSetCmd.Flags().DurationVar(&contextTTL, "ttl", 0, "how long the stored token should be considered valid")
	_ = contextSetCmd.MarkFlagRequired("server")

	contextCmd.AddCommand(contextSetCmd, contextUseCmd, contextListCmd)
}

func runContextSet(cmd *cobra.Command, args []string) error {
	name := args[0]
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	ctx := &credentials.Context{ServerURL: contextServer, AccessToken: contextToken}
	if contextTTL > 0 {
		ctx.ExpiresAt = time.Now().Add(contextTTL)
	}
	if err := store.SetContext(name, ctx); err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}
	if store.GetCurrentContextName() == "" {
		if err := store.UseContext(name); err != nil {
			return err
		}
	}

	cmdutil.PrintSuccess(fmt.Sprintf("context %q saved", name))
	return nil
}

func runContextUse(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}
	if err := store.UseContext(args[0]); err != nil {
		return err
	}
	cmdutil.PrintSuccess(fmt.Sprintf("switched to context %q", args[0]))
	return nil
}

// contextInfo is one context's summary, for table/JSON/YAML rendering.
type contextInfo struct {
	Name      string `json:"name" yaml:"name"`
	Current   bool   `json:"current" yaml:"current"`
	ServerURL string `json:"server_url" yaml:"server_url"`
	HasToken  bool   `json:"has_token" yaml:"has_token"`
}

type contextList []contextInfo

func (cl contextList) Headers() []string { return []string{"", "NAME", "SERVER", "TOKEN"} }

func (cl contextList) Rows() [][]string {
	rows := make([][]string, 0, len(cl))
	for _, c := range cl {
		marker := ""
		if c.Current {
			marker = "*"
		}
		rows = append(rows, []string{marker, c.Name, c.ServerURL, cmdutil.BoolToYesNo(c.HasToken)})
	}
	return rows
}

func runContextList(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	names := store.ListContexts()
	current := store.GetCurrentContextName()
	list := make(contextList, 0, len(names))
	for _, name := range names {
		ctx, err := store.GetContext(name)
		if err != nil {
			continue
		}
		list = append(list, contextInfo{
			Name:      name,
			Current:   name == current,
			ServerURL: ctx.ServerURL,
			HasToken:  ctx.AccessToken != "",
		})
	}

	return cmdutil.PrintOutput(os.Stdout, len(list) == 0, "No contexts configured. Use 'databrokerctl context set' to create one.", list)
}
