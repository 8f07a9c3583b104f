package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mcpgate/internal/app"
	"mcpgate/internal/auth"
	"mcpgate/internal/catalog"
	"mcpgate/internal/connection"
)

type checkOptions struct {
	baseURL string
	userID  string
	output  string
	quiet   bool
}

// checkReport is what check prints, in table or JSON form.
type checkReport struct {
	ServerID   string              `json:"serverId"`
	Auth       auth.Result         `json:"auth"`
	Connection *connection.Status  `json:"connection"`
	Info       *catalog.ServerInfo `json:"info,omitempty"`
	InfoError  string              `json:"infoError,omitempty"`
}

func newCheckCmd() *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check SERVER_ID",
		Short: "Check authorization and catalog of a registered server",
		Long: `Asks a running mcpgate whether SERVER_ID can be used for a user right now,
shows the live connection status and, once authorized, the server's tools.

Exit codes:
  0  authenticated
  2  authorization required (the authorize URL is printed)
  3  authorization failed or the server is unreachable`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "url", "", "mcpgate base URL (default: the configured public URL)")
	cmd.Flags().StringVarP(&opts.userID, "user", "u", os.Getenv("USER"), "User id to check for")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress the progress spinner")
	return cmd
}

func resolveBaseURL(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return app.PublicURL(cfg.Server), nil
}

func runCheck(ctx context.Context, out io.Writer, opts *checkOptions, serverID string) error {
	if opts.output != "table" && opts.output != "json" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	if opts.userID == "" {
		return errors.New("--user is required")
	}
	baseURL, err := resolveBaseURL(opts.baseURL)
	if err != nil {
		return err
	}
	client := newAPIClient(baseURL, opts.userID)

	var s *spinner.Spinner
	if !opts.quiet && opts.output == "table" {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = " Checking " + serverID + "..."
		s.Start()
	}
	report, err := collectReport(ctx, client, serverID)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		return err
	}

	if opts.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		renderReport(out, report)
	}

	switch report.Auth.Status {
	case auth.StatusRequiresAuth:
		return &AuthRequiredError{ServerID: serverID, AuthURL: report.Auth.AuthURL}
	case auth.StatusFailed:
		return &AuthFailedError{ServerID: serverID, Reason: report.Auth.Error}
	default:
		return nil
	}
}

func collectReport(ctx context.Context, client *apiClient, serverID string) (*checkReport, error) {
	report := &checkReport{ServerID: serverID}

	if err := client.do(ctx, http.MethodGet, serverPath(serverID, "/auth"), nil, &report.Auth); err != nil {
		return nil, err
	}

	var conn struct {
		Status *connection.Status `json:"status"`
	}
	if err := client.do(ctx, http.MethodGet, serverPath(serverID, "/connection"), nil, &conn); err != nil {
		return nil, err
	}
	report.Connection = conn.Status

	if report.Auth.Status == auth.StatusAuthenticated {
		info := &catalog.ServerInfo{}
		if err := client.do(ctx, http.MethodGet, serverPath(serverID, "/info"), nil, info); err != nil {
			report.InfoError = err.Error()
		} else {
			report.Info = info
		}
	}
	return report, nil
}

func renderReport(out io.Writer, r *checkReport) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("SERVER"), text.FgHiCyan.Sprint("AUTH"),
		text.FgHiCyan.Sprint("CONNECTION"), text.FgHiCyan.Sprint("TOOLS"),
		text.FgHiCyan.Sprint("RESOURCES"), text.FgHiCyan.Sprint("PROMPTS")})

	tools, resources, prompts := "-", "-", "-"
	if r.Info != nil {
		tools = fmt.Sprint(len(r.Info.Tools))
		resources = fmt.Sprint(len(r.Info.Resources))
		prompts = fmt.Sprint(len(r.Info.Prompts))
	}
	t.AppendRow(table.Row{r.ServerID, formatAuthStatus(r.Auth.Status), formatConnection(r.Connection),
		tools, resources, prompts})
	t.Render()

	switch {
	case r.Auth.AuthURL != "":
		fmt.Fprintf(out, "Authorize at: %s\n", r.Auth.AuthURL)
	case r.Auth.Error != "":
		fmt.Fprintf(out, "%s %s\n", text.FgRed.Sprint("Error:"), r.Auth.Error)
	case r.InfoError != "":
		fmt.Fprintf(out, "%s %s\n", text.FgYellow.Sprint("Catalog unavailable:"), r.InfoError)
	}

	if r.Info == nil || len(r.Info.Tools) == 0 {
		return
	}
	tt := table.NewWriter()
	tt.SetOutputMirror(out)
	tt.SetStyle(table.StyleRounded)
	tt.AppendHeader(table.Row{text.FgHiCyan.Sprint("TOOL"), text.FgHiCyan.Sprint("ORIGINAL NAME"),
		text.FgHiCyan.Sprint("DESCRIPTION")})
	for _, e := range r.Info.Tools {
		tt.AppendRow(table.Row{e.Name, e.OriginalName, truncate(e.Tool.Description, 60)})
	}
	tt.Render()
}

func formatAuthStatus(s auth.Status) string {
	switch s {
	case auth.StatusAuthenticated:
		return text.FgGreen.Sprint("Authenticated")
	case auth.StatusRequiresAuth:
		return text.FgYellow.Sprint("Requires authorization")
	case auth.StatusFailed:
		return text.FgRed.Sprint("Failed")
	default:
		return text.FgHiBlack.Sprint(string(s))
	}
}

func formatConnection(s *connection.Status) string {
	if s == nil {
		return text.FgHiBlack.Sprint("Not observed")
	}
	switch s.State {
	case connection.StateConnected:
		return text.FgGreen.Sprint("Connected")
	case connection.StateUnauthorized:
		return text.FgYellow.Sprint("Not authenticated")
	case connection.StateOffline:
		return text.FgHiBlack.Sprint("Unreachable")
	default:
		return text.FgRed.Sprint("Error")
	}
}

// truncate keeps table cells on one line and cuts s to n runes.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
