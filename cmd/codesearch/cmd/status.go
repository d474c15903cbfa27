package cmd

import (
	"github.com/spf13/cobra"

	"github.com/opencodesearch/codesearch/internal/output"
	"github.com/opencodesearch/codesearch/pkg/codesearch"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [path]",
		Short: "Show the indexing status of a codebase",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer setupLogging()()
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			engine, err := newEngine(cmd.Context(), root)
			if err != nil {
				return err
			}

			st := engine.GetIndexingStatus(root)
			out := output.New(cmd.OutOrStdout())
			switch st.Kind {
			case codesearch.StatusNotFound:
				out.Status("", "not indexed")
			case codesearch.StatusIndexing:
				out.Statusf("", "indexing: %.1f%%", st.Progress)
			case codesearch.StatusIndexed:
				out.Successf("indexed: %d files, %d chunks, status=%s", st.IndexedFiles, st.TotalChunks, st.IndexStatus)
			case codesearch.StatusFailed:
				out.Errorf("failed: %s (last attempted %.1f%%)", st.ErrorMessage, st.LastAttemptedProgress)
			}
			return nil
		},
	}
}
