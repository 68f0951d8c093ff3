package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/moonmind/moonmind/pkg/client"
	"github.com/moonmind/moonmind/pkg/types"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage worker tokens",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create WORKER_ID",
	Short: "Mint a new worker token",
	Long: `Mint a scoped bearer token for a worker against a running server.

The raw token is printed exactly once; only its SHA-256 digest is stored,
so a lost token can only be replaced, never recovered.

Examples:
  # Token restricted to one repository and task jobs
  moonmind token create ci-worker-1 \
    --allowed-repository acme/api \
    --allowed-job-type task \
    --capability git --capability docker`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		repos, _ := cmd.Flags().GetStringSlice("allowed-repository")
		jobTypes, _ := cmd.Flags().GetStringSlice("allowed-job-type")
		capabilities, _ := cmd.Flags().GetStringSlice("capability")

		resp, err := serverClient(cmd).MintWorkerToken(cmd.Context(), &types.CreateWorkerTokenRequest{
			WorkerID:            args[0],
			Description:         description,
			AllowedRepositories: repos,
			AllowedJobTypes:     jobTypes,
			Capabilities:        capabilities,
		})
		if err != nil {
			return fmt.Errorf("failed to mint token: %w", err)
		}

		fmt.Printf("✓ Token minted for worker '%s'\n", resp.WorkerToken.WorkerID)
		fmt.Printf("  Token ID: %s\n", resp.WorkerToken.ID)
		fmt.Println()
		fmt.Println("Save this token now. It will not be shown again:")
		fmt.Println()
		fmt.Printf("  %s\n", resp.Token)
		return nil
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List worker tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := serverClient(cmd).ListWorkerTokens(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list tokens: %w", err)
		}
		if len(tokens) == 0 {
			fmt.Println("No worker tokens found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWORKER\tACTIVE\tCAPABILITIES\tCREATED")
		for _, t := range tokens {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
				t.ID, t.WorkerID, t.IsActive,
				strings.Join(t.Capabilities, ","),
				t.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke TOKEN_ID",
	Short: "Revoke a worker token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := serverClient(cmd).RevokeWorkerToken(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to revoke token: %w", err)
		}
		fmt.Printf("✓ Token %s revoked (worker '%s')\n", token.ID, token.WorkerID)
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenCreateCmd)
	tokenCmd.AddCommand(tokenListCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)

	tokenCmd.PersistentFlags().String("server", "", "MoonMind server base URL (default http://127.0.0.1:8080 or MOONMIND_SERVER)")

	tokenCreateCmd.Flags().String("description", "", "Human-readable token description")
	tokenCreateCmd.Flags().StringSlice("allowed-repository", nil, "Repository the token may touch (repeatable; empty allows all)")
	tokenCreateCmd.Flags().StringSlice("allowed-job-type", nil, "Job type the token may claim (repeatable; empty allows all)")
	tokenCreateCmd.Flags().StringSlice("capability", nil, "Capability the worker advertises (repeatable)")

	rootCmd.AddCommand(tokenCmd)
}

// serverClient builds a client for the --server flag, with the env and
// loopback fallbacks.
func serverClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		server = os.Getenv("MOONMIND_SERVER")
	}
	if server == "" {
		server = "http://127.0.0.1:8080"
	}
	return client.New(server)
}
