package cmd

import (
	"github.com/spf13/cobra"

	"github.com/opencodesearch/codesearch/internal/output"
)

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [path]",
		Short: "Clear an indexed codebase's collection, snapshot, and status",
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

			result, err := engine.ClearIndex(cmd.Context(), root)
			if err != nil {
				output.New(cmd.OutOrStdout()).Errorf("clear failed: %s", err)
				return err
			}

			output.New(cmd.OutOrStdout()).Successf("cleared=%v remaining_indexed_codebases=%d",
				result.Cleared, result.RemainingIndexedCodebases)
			return nil
		},
	}
}
