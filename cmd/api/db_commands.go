package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourusername/login-portal/internal/config"
	"github.com/yourusername/login-portal/internal/database"
	"github.com/yourusername/login-portal/internal/password"
	"github.com/yourusername/login-portal/internal/users"
)

// NewMigrateCmd は migrate サブコマンドを作成します。
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			cmd.Println("Running migrations...")
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := db.Version(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Migrations completed successfully (version %d)\n", version)
			return nil
		},
	}
}

// NewResetDBCmd は reset-db サブコマンドを作成します。全データを削除するため --force が必須です。
func NewResetDBCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reset-db",
		Short: "Drop all tables and re-apply migrations (destroys all users)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				return errors.New("reset-db deletes every user; re-run with --force to confirm")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			db, err := database.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Reset(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Database reset completed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm destructive reset")
	return cmd
}

// NewCreateUserCmd は create-user サブコマンドを作成します。
func NewCreateUserCmd() *cobra.Command {
	var username, email, plaintext string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := users.NewService(db.UserRepository(), password.NewBcrypt(cfg.BcryptCost))
			user, err := svc.Create(cmd.Context(), username, email, plaintext)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			cmd.Printf("Created user %s (id=%d)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&plaintext, "password", "", "password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
