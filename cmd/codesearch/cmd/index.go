package cmd

import (
	"github.com/spf13/cobra"

	"github.com/opencodesearch/codesearch/internal/config"
	"github.com/opencodesearch/codesearch/internal/output"
	"github.com/opencodesearch/codesearch/pkg/codesearch"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a codebase from scratch",
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
			stats, err := engine.IndexCodebase(cmd.Context(), root, codesearch.IndexOptions{
				Force:          force,
				AllowedExts:    cfg.Paths.AllowedExts,
				IgnorePatterns: cfg.Paths.IgnorePatterns,
				MaxFileSize:    int64(cfg.Paths.MaxFileSizeMB * 1024 * 1024),
			}, func(e codesearch.ProgressEvent) {
				out.Progress(e.Processed, e.Total, e.Phase)
			})
			out.ProgressDone()
			if err != nil {
				out.Errorf("index failed: %s", err)
				return err
			}

			out.Successf("indexed %d files, %d chunks, status=%s", stats.IndexedFiles, stats.TotalChunks, stats.Status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "drop and re-index an already-indexed codebase")
	return cmd
}
