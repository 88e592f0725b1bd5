package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leadrelay/keygate/internal/service"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint management session tokens",
		Long:  "Mint HS256 session tokens for the key management API. The CRM normally issues these; this is for operators and testing.",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		accountID int64
		userID    int64
		email     string
		ttl       time.Duration
	)

	cmd := &cobra.Command{
		Use:     "issue",
		Short:   "Issue a session token for an account user",
		Example: `  keygate token issue --account 1 --user 42 --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.store.GetAccount(cmd.Context(), accountID); err != nil {
				return fmt.Errorf("account %d: %w", accountID, err)
			}
			sessions, err := a.sessions()
			if err != nil {
				return err
			}
			token, err := sessions.Issue(service.Principal{UserID: userID, AccountID: accountID, Email: email}, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "Account id (required)")
	cmd.Flags().Int64Var(&userID, "user", 0, "CRM user id recorded as the creator of keys")
	cmd.Flags().StringVar(&email, "email", "", "User email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.MarkFlagRequired("account")

	return cmd
}
