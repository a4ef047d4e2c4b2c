package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/config"
	"github.com/flashdb/playground/internal/logging"
	"github.com/flashdb/playground/internal/pubsub"
	"github.com/flashdb/playground/internal/router"
	"github.com/flashdb/playground/internal/version"
)

var (
	cfg    *config.Config
	logger *zap.Logger

	rootCmd = &cobra.Command{
		Use:   "playground",
		Short: "database playground for redis, mongo and cassandra commands",
		Long: fmt.Sprintf(`playground (v%s)

An in-process simulator of a key-value store, a document store and a wide
column store. State is persisted between runs in the data directory.`, version.Version),
		SilenceUsage:      true,
		PersistentPreRunE: processConfig,
		RunE:              runShell,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of playground",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	}
)

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.Flags().String("history", "", "File of the shell history")

	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(bucketsCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(versionCmd)
}

// processConfig binds the flags to viper and builds the configuration and
// the logger shared by every command.
func processConfig(cmd *cobra.Command, _ []string) error {
	if cmd == versionCmd {
		return nil
	}
	config.LoadEnv()

	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	c, err := config.Load(v)
	if err != nil {
		return err
	}
	l, err := logging.New(c.LogLevel, c.LogMode)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

// openRouter opens the configured store and a router over it.
func openRouter(store bucket.Store, bus pubsub.Bus) (*router.Router, error) {
	return router.New(router.Options{
		Store:    store,
		Toggles:  cfg.Toggles(),
		Bus:      bus,
		Logger:   logger,
		Defaults: cfg.Settings(),
		Active:   cfg.Engine,
	})
}
