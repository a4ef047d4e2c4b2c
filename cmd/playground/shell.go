package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flashdb/playground/internal/console"
	"github.com/flashdb/playground/internal/pubsub"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the interactive shell",
	Long: `Start the interactive shell. Lines starting with a dot are shell commands
(type .help); everything else goes to the active engine. When standard input
is not a terminal, the lines are run as a script.`,
	RunE: runShell,
}

func init() {
	shellCmd.Flags().String("history", "", "File of the shell history")
}

func runShell(cmd *cobra.Command, _ []string) error {
	store, err := cfg.OpenStore(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := openRouter(store, pubsub.NewLocalBus())
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := console.New(r, cmd.OutOrStdout(), logger)
	if !isTerminal(os.Stdin) {
		lines, err := readLines(os.Stdin)
		if err != nil {
			return err
		}
		c.RunScript(lines)
		return nil
	}

	history, _ := cmd.Flags().GetString("history")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.RunSweeper(ctx, cfg.SweepInterval)
	})
	g.Go(func() error {
		defer cancel()
		return c.Run(ctx, history)
	})
	if err := g.Wait(); err != nil {
		logger.Error("shell stopped", zap.Error(err))
		return err
	}
	return nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func readLines(f *os.File) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
