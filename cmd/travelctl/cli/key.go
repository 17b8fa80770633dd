package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"travelblog/internal/ids"
	"travelblog/internal/models"
)

// operator acts with admin rights on behalf of whoever runs travelctl.
var operator = models.Principal{Kind: models.PrincipalAdmin}

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Inspect and revoke API keys",
	}

	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

func newKeyListCmd() *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show both key slots of an account",
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

			slots, err := a.keys.List(ctx, operator, accountID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SLOT\tPREFIX\tACTIVE\tLAST USED")
			for _, slot := range slots {
				prefix, lastUsed := "-", "-"
				if slot.KeyPrefix != nil {
					prefix = *slot.KeyPrefix
				}
				if slot.LastUsedAt != nil {
					lastUsed = slot.LastUsedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", slot.Slot, prefix, slot.IsActive, lastUsed)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account id (required)")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newKeyRevokeCmd() *cobra.Command {
	var (
		accountID string
		slotName  string
	)

	cmd := &cobra.Command{
		Use:     "revoke",
		Short:   "Empty an API key slot",
		Example: `  travelctl key revoke --account 2Zk8... --slot secondary`,
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, ok := models.ParseKeySlot(slotName)
			if !ok {
				return fmt.Errorf("--slot must be primary or secondary")
			}
			if err := checkAccountID(accountID); err != nil {
				return err
			}

			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.keys.Revoke(ctx, operator, accountID, slot); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s key of %s revoked\n", slot, accountID)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account id (required)")
	cmd.Flags().StringVar(&slotName, "slot", "", "primary or secondary (required)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("slot")
	return cmd
}

func checkAccountID(id string) error {
	if !ids.Valid(id) {
		return fmt.Errorf("%q is not an account id", id)
	}
	return nil
}
