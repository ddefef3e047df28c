package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd はCLIのルートコマンドを作成します。サブコマンド省略時はサーバーを起動します。
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "login-portal",
		Short:        "Session-authenticated login portal",
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewResetDBCmd())
	cmd.AddCommand(NewCreateUserCmd())

	return cmd
}

// NewServeCmd は serve サブコマンドを作成します。
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  `Apply pending migrations and start the HTTP server on PORT.`,
		RunE:  runServe,
	}
}
