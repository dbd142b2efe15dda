package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-messenger/core"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	migrate       bool
	skipConfigure bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook and run the queue consumers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, root, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "Apply SQL migrations before serving")
	cmd.Flags().BoolVar(&opts.skipConfigure, "skip-configure", false, "Do not post thread settings on startup")
	return cmd
}

func runServe(ctx context.Context, root *rootOptions, opts *serveOptions) error {
	cfg, err := root.loadConfig(ctx)
	if err != nil {
		return err
	}
	logger := newConsoleLogger(os.Stderr, root.logLevel)
	container, err := NewContainer(ctx, cfg, logger, namedProvider{base: logger})
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	if opts.migrate && container.database.client != nil {
		if err := container.database.client.Migrate(ctx); err != nil {
			return core.BrokerUnavailable(err, "apply migrations", nil)
		}
	}

	hub := container.Hub()
	if !opts.skipConfigure {
		for channelID, err := range hub.ConfigureAll(ctx) {
			core.LogWithFields(ctx, logger, "warn", "channel disabled", core.ErrorFields(err, map[string]any{
				"channel_id": channelID,
			}))
		}
	}

	server := hub.Server()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", server.Addr, "webhook", cfg.WebhookPath())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return ignoreCanceled(hub.ConsumeInbound(gctx)) })
	g.Go(func() error { return ignoreCanceled(hub.ConsumeOutbound(gctx)) })

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
