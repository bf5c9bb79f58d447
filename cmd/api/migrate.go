package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"docbridge/internal/config"
	"docbridge/internal/store"
)

func migrateCmd() *cobra.Command {
	var dir string
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			db, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if status {
				pending, err := store.PendingMigrations(cmd.Context(), db, dir)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(out, "up to date")
				}
				for _, file := range pending {
					fmt.Fprintln(out, "pending", filepath.Base(file))
				}
				return nil
			}

			applied, err := store.ApplyMigrations(cmd.Context(), db, dir)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(out, "up to date")
			}
			for _, version := range applied {
				fmt.Fprintln(out, "applied", version)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Migrations directory (default MIGRATIONS_DIR)")
	cmd.Flags().BoolVar(&status, "status", false, "List pending migrations without applying them")
	return cmd
}
