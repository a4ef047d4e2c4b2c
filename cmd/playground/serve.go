package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flashdb/playground/internal/console"
	"github.com/flashdb/playground/internal/pubsub"
	"github.com/flashdb/playground/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API on --web-addr. With --repl a shell runs on the terminal
as a second context sharing the stored buckets and the pub/sub bus with the
API.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("repl", false, "Also run the interactive shell")
	serveCmd.Flags().String("history", "", "File of the shell history")
}

func runServe(cmd *cobra.Command, _ []string) error {
	store, err := cfg.OpenStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := pubsub.NewLocalBus()
	r, err := openRouter(store, bus)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	srv := web.New(cfg.WebAddr, r, logger)
	g.Go(func() error {
		return srv.Start(ctx)
	})
	g.Go(func() error {
		return r.RunSweeper(ctx, cfg.SweepInterval)
	})

	if repl, _ := cmd.Flags().GetBool("repl"); repl {
		shell, err := openRouter(store, bus)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		defer shell.Close()

		history, _ := cmd.Flags().GetString("history")
		c := console.New(shell, cmd.OutOrStdout(), logger)
		g.Go(func() error {
			return shell.RunSweeper(ctx, cfg.SweepInterval)
		})
		g.Go(func() error {
			defer cancel()
			return c.Run(ctx, history)
		})
	}

	logger.Info("serving", zap.String("addr", cfg.WebAddr), zap.String("backend", cfg.Backend))
	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
