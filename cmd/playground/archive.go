package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/config"
	"github.com/flashdb/playground/internal/pubsub"
	"github.com/flashdb/playground/internal/router"
)

var (
	exportCmd = &cobra.Command{
		Use:   "export <file>",
		Short: "Write every bucket and the persistence switches to an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRouter(func(r *router.Router) error {
				a, err := r.Export()
				if err != nil {
					return err
				}
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				if err := router.WriteArchive(f, a); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s.\n", args[0])
				return nil
			})
		},
	}
	importCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Replace every bucket from an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			a, err := router.ReadArchive(f)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			return withRouter(func(r *router.Router) error {
				if err := r.Import(a); err != nil {
					return fmt.Errorf("import failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Import successful.")
				return nil
			})
		},
	}
	bucketsCmd = &cobra.Command{
		Use:   "buckets",
		Short: "List the bucket files in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs, err := fileStore()
			if err != nil {
				return err
			}
			metas, err := fs.List()
			if err != nil {
				return err
			}
			if len(metas) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(no buckets)")
			}
			for _, m := range metas {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %8d bytes  %s\n", m.Name, m.SizeBytes, m.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	resetCmd = &cobra.Command{
		Use:   "reset [engine...]",
		Short: "Delete the stored buckets of the given engines, or of all",
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := fileStore()
			if err != nil {
				return err
			}
			if len(args) == 0 {
				metas, err := fs.List()
				if err != nil {
					return err
				}
				for _, m := range metas {
					args = append(args, m.Name)
				}
			}
			for _, name := range args {
				if err := fs.Delete(name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", name)
			}
			return nil
		},
	}
)

func withRouter(fn func(r *router.Router) error) error {
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
	return fn(r)
}

func fileStore() (*bucket.FileStore, error) {
	if cfg.Backend != config.BackendFile {
		return nil, errors.New("buckets are only listed for the file backend")
	}
	return bucket.NewFileStore(cfg.DataDir)
}
