package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/logging"
	"github.com/dmitrijs2005/tooltool/internal/server"
	"github.com/dmitrijs2005/tooltool/internal/server/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tooltool",
		Short:         "Content-addressed artifact store",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (%s, built %s)", Version, Commit, BuildTime),
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		appCmd("serve", "Serve the HTTP API", (*server.App).RunServer),
		appCmd("worker", "Verify pending uploads and replicate files continuously", (*server.App).RunWorker),
		appCmd("check-pending-uploads", "Check every pending upload once", (*server.App).CheckPendingUploads),
		appCmd("replicate", "Copy files to every configured region once", (*server.App).Replicate),
		appCmd("migrate", "Apply database migrations", (*server.App).Migrate),
		tokenCmd(),
	)
	return root
}

// withApp loads the configuration and runs fn against a fresh App.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *server.App) error) error {
	cfg, err := config.LoadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	app, err := server.NewApp(cfg, logger, server.BuildInfo{Version: Version, Commit: Commit, Build: BuildTime})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := server.WithSignals(cmd.Context())
	defer cancel()

	if err := fn(ctx, app); err != nil {
		logger.Error(ctx, "command failed", "command", cmd.Name(), "error", err)
		return err
	}
	return nil
}

func appCmd(use, short string, run func(*server.App, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App) error {
				return run(app, ctx)
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		clientID string
		scopes   []string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			app, err := server.NewApp(cfg, logging.Nop(), server.BuildInfo{Version: Version})
			if err != nil {
				return err
			}
			defer app.Close()

			tok, err := app.MintToken(clientID, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client-id", "", "client the token is issued to")
	cmd.Flags().StringArrayVar(&scopes, "scope", nil, "scope to grant; repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("client-id")
	return cmd
}
