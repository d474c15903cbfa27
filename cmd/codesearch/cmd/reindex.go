package cmd

import (
	"github.com/spf13/cobra"

	"github.com/opencodesearch/codesearch/internal/config"
	"github.com/opencodesearch/codesearch/internal/output"
	"github.com/opencodesearch/codesearch/pkg/codesearch"
)

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [path]",
		Short: "Re-index only the files that changed since the last run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer setupLogging()()
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			engine, err := newEngine(cmd.Context(), root)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			stats, err := engine.ReindexByChange(cmd.Context(), root, codesearch.IndexOptions{
				AllowedExts:    cfg.Paths.AllowedExts,
				IgnorePatterns: cfg.Paths.IgnorePatterns,
				MaxFileSize:    int64(cfg.Paths.MaxFileSizeMB * 1024 * 1024),
			}, nil)
			if err != nil {
				out.Errorf("reindex failed: %s", err)
				return err
			}

			out.Successf("added=%d modified=%d removed=%d", stats.Added, stats.Modified, stats.Removed)
			return nil
		},
	}
}
