package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func newRegisterCmd() *cobra.Command {
	var (
		baseURL string
		userID  string
		name    string
	)
	cmd := &cobra.Command{
		Use:   "register SERVER_ID URL",
		Short: "Register an MCP server for a user",
		Long: `Registers the MCP server at URL under SERVER_ID for a user. Registering an
existing id replaces it, and its authorization starts over.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			base, err := resolveBaseURL(baseURL)
			if err != nil {
				return err
			}
			client := newAPIClient(base, userID)
			body := map[string]string{"name": name, "url": args[1]}
			if err := client.do(cmd.Context(), http.MethodPut, serverPath(args[0], ""), body, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Run 'mcpgate check %s' to authorize it.\n", args[0], args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "mcpgate base URL (default: the configured public URL)")
	cmd.Flags().StringVarP(&userID, "user", "u", os.Getenv("USER"), "User id to register the server for")
	cmd.Flags().StringVar(&name, "name", "", "Display name, used as the tool name prefix (default: SERVER_ID)")
	return cmd
}
