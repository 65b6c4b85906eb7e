package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"notebox/cmd/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "notebox",
		Short:         "notebox auth and notes API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Serve(cmd.Context())
		},
	}

	cmd.AddCommand(newServeCommand(), newMigrateCommand(), newUserCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Serve(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Migrate(cmd.Context())
		},
	}
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Account administration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newSetDisabledCommand("disable", "Suspend an account; its tokens stop refreshing", true),
		newSetDisabledCommand("enable", "Reinstate a suspended account", false),
	)
	return cmd
}

func newSetDisabledCommand(use, short string, disabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := app.LoadConfig(ctx)
			if err != nil {
				return err
			}
			log := app.NewLogger(cfg.LogLevel, cfg.LogFormat)

			users, closeStore, err := app.OpenUserStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			u, err := users.GetUserByEmail(ctx, args[0])
			if err != nil {
				return err
			}
			u, err = users.SetDisabled(ctx, u.ID, disabled, time.Now().UTC())
			if err != nil {
				return err
			}

			state := "active"
			if u.Disabled() {
				state = "disabled since " + u.DisabledAt.Format(time.RFC3339)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %s\n", u.Email, u.ID, state)
			return nil
		},
	}
}
