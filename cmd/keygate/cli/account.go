package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leadrelay/keygate/internal/model"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
		Long:  "Create and list the accounts that own API keys, or toggle whether their keys are accepted.",
	}

	cmd.AddCommand(newAccountCreateCmd())
	cmd.AddCommand(newAccountListCmd())
	cmd.AddCommand(newAccountSetActiveCmd("deactivate", false))
	cmd.AddCommand(newAccountSetActiveCmd("activate", true))

	return cmd
}

// ---------- account create ----------

func newAccountCreateCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create an account",
		Example: `  keygate account create --name "Acme Corp"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			acct := &model.Account{Name: name, IsActive: true}
			if err := a.store.CreateAccount(cmd.Context(), acct); err != nil {
				return fmt.Errorf("create account: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created: id=%d name=%q\n", acct.ID, acct.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Account name (required)")
	cmd.MarkFlagRequired("name")

	return cmd
}

// ---------- account list ----------

func newAccountListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			accounts, err := a.store.ListAccounts(cmd.Context())
			if err != nil {
				return fmt.Errorf("list accounts: %w", err)
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				if accounts == nil {
					accounts = []model.Account{}
				}
				return printJSON(out, accounts)
			}
			if len(accounts) == 0 {
				fmt.Fprintln(out, "No accounts. Use 'keygate account create' to add one.")
				return nil
			}
			fmt.Fprintf(out, "%-6s %-32s %-8s\n", "ID", "NAME", "ACTIVE")
			for _, acct := range accounts {
				active := "yes"
				if !acct.IsActive {
					active = "no"
				}
				fmt.Fprintf(out, "%-6d %-32s %-8s\n", acct.ID, acct.Name, active)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- account activate / deactivate ----------

func newAccountSetActiveCmd(use string, active bool) *cobra.Command {
	short := "Reject every key of an account"
	if active {
		short = "Accept the keys of an account again"
	}
	return &cobra.Command{
		Use:   use + " <account-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "account")
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.keys.SetAccountActive(cmd.Context(), id, active); err != nil {
				return fmt.Errorf("%s account %d: %w", use, id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %d %sd.\n", id, use)
			return nil
		},
	}
}
