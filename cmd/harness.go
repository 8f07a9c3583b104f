package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mcpgate/internal/testing/mock"
)

type harnessOptions struct {
	open        bool
	disablePing bool
	metadata    string
}

// harness is a running mock OAuth server plus mock MCP server.
type harness struct {
	id    string
	oauth *mock.OAuthServer
	mcp   *mock.ComplianceServer
	token *mock.TokenResponse
}

func newHarnessCmd() *cobra.Command {
	opts := &harnessOptions{}
	cmd := &cobra.Command{
		Use:   "harness",
		Short: "Run a local mock MCP server and OAuth server",
		Long: `Starts a mock MCP server and, unless --open is set, a mock OAuth
authorization server protecting it. Register the printed MCP URL with
'mcpgate register' to exercise authorization, refresh and the catalog
without a real capability server. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := startHarness(opts)
			if err != nil {
				return err
			}
			defer h.Close()
			h.Print(cmd.OutOrStdout())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.open, "open", false, "Serve without authorization")
	cmd.Flags().BoolVar(&opts.disablePing, "disable-ping", false, "Answer ping with METHOD_NOT_FOUND")
	cmd.Flags().StringVar(&opts.metadata, "metadata", string(mock.MetadataColocated),
		"Where OAuth metadata is served: colocated, root, protected-resource or none")
	return cmd
}

func startHarness(opts *harnessOptions) (*harness, error) {
	location := mock.MetadataLocation(opts.metadata)
	switch location {
	case mock.MetadataColocated, mock.MetadataRoot, mock.MetadataProtectedResource, mock.MetadataNone:
	default:
		return nil, fmt.Errorf("unknown metadata location %q", opts.metadata)
	}

	h := &harness{id: uuid.NewString()}
	cfg := mock.ComplianceConfig{
		Name:        "harness-" + h.id[:8],
		DisablePing: opts.disablePing,
	}
	if !opts.open {
		h.oauth = mock.NewOAuthServer(mock.OAuthServerConfig{})
		h.token = h.oauth.IssueToken("harness")
		cfg.OAuth = h.oauth
		cfg.MetadataLocation = location
	}
	h.mcp = mock.NewComplianceServer(cfg)
	return h, nil
}

// Print writes the endpoints as a table.
func (h *harness) Print(out io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("COMPONENT"), text.FgHiCyan.Sprint("VALUE")})
	t.AppendRow(table.Row{"Run", h.id})
	t.AppendRow(table.Row{"MCP server", h.mcp.URL()})
	if h.oauth != nil {
		t.AppendRow(table.Row{"Authorization server", h.oauth.URL()})
		t.AppendRow(table.Row{"Sample access token", h.token.AccessToken})
	} else {
		t.AppendRow(table.Row{"Authorization", text.FgYellow.Sprint("disabled")})
	}
	t.Render()
	fmt.Fprintln(out, "Press Ctrl+C to stop.")
}

// Close stops both servers.
func (h *harness) Close() {
	h.mcp.Close()
	if h.oauth != nil {
		h.oauth.Close()
	}
}
