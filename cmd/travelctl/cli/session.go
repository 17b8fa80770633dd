package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage login sessions",
	}

	var accountID string
	revoke := &cobra.Command{
		Use:   "revoke-all",
		Short: "End every session of an account issued up to now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkAccountID(accountID); err != nil {
				return err
			}
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.sessions.RevokeAll(ctx, accountID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sessions of %s revoked\n", accountID)
			return nil
		},
	}
	revoke.Flags().StringVar(&accountID, "account", "", "account id (required)")
	_ = revoke.MarkFlagRequired("account")

	cmd.AddCommand(revoke)
	return cmd
}
