package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage the admin account",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "bootstrap",
		Short: "Create the configured admin account if it does not exist",
		Long:  "Uses admin.username, admin.email and admin.password. An existing admin is left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cfg.Validate(); err != nil {
				return err
			}
			created, err := a.accounts.EnsureAdmin(ctx, a.cfg.Admin)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "admin %q created\n", a.cfg.Admin.Username)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "admin already present, nothing to do")
			}
			return nil
		},
	})

	return cmd
}
