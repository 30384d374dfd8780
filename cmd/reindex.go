package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reindexForce bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the index from the wiki database",
	Long: `Rebuild the index when the wiki has revisions newer than the index.
With --force the index is rebuilt regardless. Queries against a running
server keep using the previous index until the rebuild completes.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)

	reindexCmd.Flags().BoolVarP(&reindexForce, "force", "f", false, "Rebuild even when the index is current")
}

func runReindex(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cfg, appOptions{withWiki: true}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.engine.Reindex(cmd.Context(), reindexForce)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if result.Skipped {
		fmt.Fprintf(w, "Index is current: %d pages at revision %d\n", result.PageCount, result.Revision)
		return nil
	}
	fmt.Fprintf(w, "Indexed %d pages at revision %d in %v\n", result.PageCount, result.Revision, result.Elapsed)
	return nil
}
