package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show index status",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Output status as JSON")
}

type infoOutput struct {
	Path       string `json:"path"`
	PageCount  uint64 `json:"page_count"`
	Revision   uint32 `json:"revision"`
	Generation uint64 `json:"generation"`
}

func runInfo(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cfg, appOptions{}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := a.index.PageCount()
	if err != nil {
		return err
	}
	out := infoOutput{
		Path:       a.index.Path(),
		PageCount:  count,
		Revision:   a.index.Revision(),
		Generation: a.index.Generation(),
	}

	w := cmd.OutOrStdout()
	if infoJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}
	fmt.Fprintf(w, "Index:      %s\n", out.Path)
	fmt.Fprintf(w, "Pages:      %d\n", out.PageCount)
	fmt.Fprintf(w, "Revision:   %d\n", out.Revision)
	fmt.Fprintf(w, "Generation: %d\n", out.Generation)
	return nil
}
