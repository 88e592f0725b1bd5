package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leadrelay/keygate/internal/model"
	"github.com/leadrelay/keygate/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, revoke, rotate and delete the API keys of an account, and inspect their usage.",
	}

	cmd.PersistentFlags().Int64("account", 0, "Owning account id (required)")
	cmd.MarkPersistentFlagRequired("account")

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyDeleteCmd())
	cmd.AddCommand(newKeyRotateCmd())
	cmd.AddCommand(newKeyUsageCmd())

	return cmd
}

func accountFlag(cmd *cobra.Command) int64 {
	id, _ := cmd.Flags().GetInt64("account")
	return id
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		name        string
		permissions string
		rateLimit   int
		expiresIn   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key for an account. The raw key is shown once and cannot be retrieved again.",
		Example: `  keygate key create --account 1 --name "Zapier" --permissions contacts:read,campaigns:*
  keygate key create --account 1 --name "Nightly export" --rate-limit 100 --expires-in 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			in := service.CreateKeyInput{
				AccountID:   accountFlag(cmd),
				Name:        name,
				Permissions: splitList(permissions),
				RateLimit:   rateLimit,
			}
			if expiresIn > 0 {
				exp := a.keys.Now().Add(expiresIn)
				in.ExpiresAt = &exp
			}
			if _, err := a.store.GetAccount(cmd.Context(), in.AccountID); err != nil {
				return fmt.Errorf("account %d: %w", in.AccountID, err)
			}
			created, err := a.keys.CreateKey(cmd.Context(), in)
			if err != nil {
				return err
			}
			printSecret(cmd.OutOrStdout(), "API key created", created)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Key name (required)")
	cmd.Flags().StringVar(&permissions, "permissions", "", "Comma-separated permissions (default: contacts and opportunities read/write)")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", service.DefaultRateLimit, "Requests per hour")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Expire the key after this duration (0 = never)")
	cmd.MarkFlagRequired("name")

	return cmd
}

// printSecret shows a newly issued key. On a terminal it prints a banner
// with the key details; otherwise it prints only the key so it can be
// captured by scripts.
func printSecret(w io.Writer, title string, k *model.CreatedKeySecret) {
	if !isTerminal(w) {
		fmt.Fprintln(w, k.Secret)
		return
	}
	fmt.Fprintf(w, "%s:\n\n", title)
	fmt.Fprintf(w, "  Key:         %s\n", k.Secret)
	fmt.Fprintf(w, "  ID:          %d\n", k.ID)
	fmt.Fprintf(w, "  Name:        %s\n", k.Name)
	fmt.Fprintf(w, "  Permissions: %s\n", strings.Join(k.Permissions, ", "))
	fmt.Fprintf(w, "  Rate limit:  %d/hour\n", k.RateLimit)
	if k.ExpiresAt != nil {
		fmt.Fprintf(w, "  Expires:     %s\n", k.ExpiresAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Save this key now - it cannot be retrieved again.")
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the account's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			keys, err := a.keys.ListKeys(cmd.Context(), accountFlag(cmd))
			if err != nil {
				return fmt.Errorf("list api keys: %w", err)
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				if keys == nil {
					keys = []model.KeyRecord{}
				}
				return printJSON(out, keys)
			}
			if len(keys) == 0 {
				fmt.Fprintln(out, "No API keys. Use 'keygate key create' to create one.")
				return nil
			}

			fmt.Fprintf(out, "%-6s %-16s %-24s %-8s %-10s %s\n", "ID", "PREFIX", "NAME", "ACTIVE", "LIMIT/H", "LAST USED")
			for _, k := range keys {
				active := "yes"
				if !k.IsActive {
					active = "no"
				} else if k.Expired(a.keys.Now()) {
					active = "expired"
				}
				lastUsed := "never"
				if k.LastUsedAt != nil {
					lastUsed = k.LastUsedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%-6d %-16s %-24s %-8s %-10d %s\n", k.ID, k.Preview(), k.Name, active, k.RateLimit, lastUsed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- key revoke / delete / rotate ----------

func newKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Long:  "Deactivate an API key. Its usage history is kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "key")
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.keys.RevokeKey(cmd.Context(), id, accountFlag(cmd)); err != nil {
				return fmt.Errorf("revoke key %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key %d revoked.\n", id)
			return nil
		},
	}
}

func newKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "key")
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.keys.DeleteKey(cmd.Context(), id, accountFlag(cmd))
			if err != nil {
				return fmt.Errorf("delete key %d: %w", id, err)
			}
			if !deleted {
				return fmt.Errorf("API key %d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API key %d deleted.\n", id)
			return nil
		},
	}
}

func newKeyRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rotate <key-id>",
		Aliases: []string{"regenerate"},
		Short:   "Replace an API key with a new secret",
		Long:    "Revoke an API key and issue a replacement with the same name, permissions, rate limit and expiry.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "key")
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.keys.RegenerateKey(cmd.Context(), id, accountFlag(cmd), 0)
			if err != nil {
				return fmt.Errorf("rotate key %d: %w", id, err)
			}
			printSecret(cmd.OutOrStdout(), "API key rotated (old key "+strconv.FormatInt(id, 10)+" revoked)", created)
			return nil
		},
	}
}

// ---------- key usage ----------

func newKeyUsageCmd() *cobra.Command {
	var (
		days       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "usage <key-id>",
		Short: "Show usage statistics for an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "key")
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.keys.GetKey(cmd.Context(), id, accountFlag(cmd)); err != nil {
				return fmt.Errorf("key %d: %w", id, err)
			}
			stats, err := service.NewUsageRecorder(a.store, a.logger, 0, nil).Stats(cmd.Context(), id, days)
			if err != nil {
				return fmt.Errorf("usage stats: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, stats)
			}
			fmt.Fprintf(out, "Usage of key %d over the last %d days\n\n", id, stats.Days)
			fmt.Fprintf(out, "%-12s %8s %8s %8s %10s\n", "DATE", "TOTAL", "OK", "FAILED", "AVG MS")
			for _, d := range stats.Daily {
				fmt.Fprintf(out, "%-12s %8d %8d %8d %10.1f\n", d.Date, d.TotalRequests, d.Successful, d.Failed, d.AvgResponseTime)
			}
			if len(stats.Endpoints) > 0 {
				fmt.Fprintf(out, "\n%-8s %-48s %8s\n", "METHOD", "ENDPOINT", "COUNT")
				for _, e := range stats.Endpoints {
					fmt.Fprintf(out, "%-8s %-48s %8d\n", e.Method, e.Endpoint, e.Count)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", service.DefaultStatsDays, "Number of days to report (1-365)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
