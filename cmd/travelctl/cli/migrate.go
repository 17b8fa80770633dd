package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"travelblog/internal/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateVersionCmd())
	cmd.AddCommand(newMigrateForceCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Example: `  travelctl migrate up
  travelctl migrate up --steps 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 0 {
				return fmt.Errorf("--steps must be positive, use migrate down to roll back")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			status, err := database.Migrate(cfg.Postgres.DSN, steps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", status.Version)
			return nil
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 0, "number of versions to apply (0 applies all)")
	return cmd
}

func newMigrateDownCmd() *cobra.Command {
	var (
		steps int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long:  "Roll back the given number of versions. --all drops every table the migrations created.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if all {
				if err := database.MigrateDown(cfg.Postgres.DSN); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "all migrations rolled back")
				return nil
			}
			if steps <= 0 {
				return fmt.Errorf("pass --steps N or --all")
			}
			status, err := database.Migrate(cfg.Postgres.DSN, -steps)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", status.Version)
			return nil
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "number of versions to roll back")
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")
	return cmd
}

func newMigrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			status, err := database.MigrationVersion(cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			dirty := ""
			if status.Dirty {
				dirty = " (dirty)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d%s\n", status.Version, dirty)
			return nil
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark the schema as VERSION without running migrations",
		Long:  "Clears the dirty flag after a failed migration was repaired by hand.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := database.ForceMigrationVersion(cfg.Postgres.DSN, version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema forced to version %d\n", version)
			return nil
		},
	}
}
