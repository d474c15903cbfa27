package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencodesearch/codesearch/internal/output"
	"github.com/opencodesearch/codesearch/pkg/codesearch"
)

func newSearchCmd() *cobra.Command {
	var (
		root            string
		limit           int
		threshold       float64
		useThreshold    bool
		extensionFilter []string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed codebase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer setupLogging()()
			engine, err := newEngine(cmd.Context(), root)
			if err != nil {
				return err
			}

			opts := codesearch.SearchOptions{Limit: limit, ExtensionFilter: extensionFilter}
			if useThreshold {
				opts.Threshold = &threshold
			}

			results, err := engine.SearchCode(cmd.Context(), root, args[0], opts)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			for _, r := range results {
				out.Statusf("", "%s:%d-%d [%s] score=%.4f", r.RelativePath, r.StartLine, r.EndLine, r.Language, r.Score)
				out.Code(r.Content)
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no results")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", ".", "codebase root to search")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of results")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "drop fused results scoring below this")
	cmd.Flags().BoolVar(&useThreshold, "use-threshold", false, "apply --threshold (unset means no threshold)")
	cmd.Flags().StringSliceVar(&extensionFilter, "ext", nil, "restrict results to these file extensions (e.g. .go,.py)")
	return cmd
}
