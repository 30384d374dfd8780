package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adalundhe/wikisearch/core/search"
)

// ANSI codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
	colorMatch  = "\033[1;31m"
)

// =============================================================================
// Query Command Flags
// =============================================================================

var (
	queryCount         int
	queryOffset        int
	querySnippetLength int
	queryFuzzy         bool
	queryBefore        string
	queryAfter         string
	queryJSON          bool
)

var queryCmd = &cobra.Command{
	Use:   "query [terms...]",
	Short: "Search the index",
	Long: `Search the index from the command line. Terms use the query syntax of
the HTTP API: +must -not "exact phrase" title:term prefix*. With no terms
every page matches.

Examples:
  wikisearch query cats
  wikisearch query --fuzzy mamal
  wikisearch query --after 2020-01-01 --before 2020-12-31 meeting
  wikisearch query --json "+cats -dogs" | jq '.entries'`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().IntVarP(&queryCount, "count", "n", search.DefaultCount, "Number of results")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "Number of results to skip")
	queryCmd.Flags().IntVar(&querySnippetLength, "snippet-length", search.CLISnippetLength, "Maximum snippet length in characters")
	queryCmd.Flags().BoolVarP(&queryFuzzy, "fuzzy", "f", false, "Match terms within one edit and by prefix")
	queryCmd.Flags().StringVar(&queryBefore, "before", "", "Only pages whose title date is on or before YYYY-MM-DD")
	queryCmd.Flags().StringVar(&queryAfter, "after", "", "Only pages whose title date is on or after YYYY-MM-DD")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Output results as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	opts, err := queryOptions()
	if err != nil {
		return err
	}

	a, err := openApp(cfg, appOptions{}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.engine.Query(cmd.Context(), strings.Join(args, " "), opts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if queryJSON {
		return outputJSONResults(w, result)
	}
	outputTextResults(w, result, stdoutIsTerminal(w))
	return nil
}

func queryOptions() (search.QueryOptions, error) {
	opts := search.QueryOptions{
		Offset:        queryOffset,
		Count:         queryCount,
		SnippetLength: querySnippetLength,
		Fuzzy:         queryFuzzy,
	}
	if queryCount < 1 {
		return opts, fmt.Errorf("%w: --count must be at least 1", search.ErrInvalidQuery)
	}
	var err error
	if opts.DateBefore, err = search.ParseDate(queryBefore); err != nil {
		return opts, err
	}
	if opts.DateAfter, err = search.ParseDate(queryAfter); err != nil {
		return opts, err
	}
	return opts, nil
}

// =============================================================================
// Output Formatting
// =============================================================================

type queryOutput struct {
	Entries   []entryOutput `json:"entries"`
	Total     int           `json:"total"`
	Remaining int           `json:"remaining"`
	NewOffset *int          `json:"new_offset,omitempty"`
	Elapsed   string        `json:"elapsed"`
}

type entryOutput struct {
	Namespace string   `json:"namespace"`
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	URL       string   `json:"url"`
	PageID    int64    `json:"page_id"`
	Score     *float64 `json:"score,omitempty"`
}

// outputJSONResults writes the result with plain, unmarked snippets.
func outputJSONResults(w io.Writer, result *search.PageMatchResult) error {
	out := queryOutput{
		Entries:   make([]entryOutput, 0, len(result.Entries)),
		Total:     result.Total,
		Remaining: result.Remaining,
		NewOffset: result.NewOffset,
		Elapsed:   result.Elapsed.String(),
	}
	for _, e := range result.Entries {
		out.Entries = append(out.Entries, entryOutput{
			Namespace: e.Namespace.String(),
			Title:     e.Title.Highlight("", ""),
			Text:      e.Text.Highlight("", ""),
			URL:       e.URL,
			PageID:    e.PageID,
			Score:     e.Score,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// outputTextResults writes one block per page. Matches are colored when
// color is set and left unmarked otherwise.
func outputTextResults(w io.Writer, result *search.PageMatchResult, color bool) {
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + colorReset
	}
	prefix, suffix := "", ""
	if color {
		prefix, suffix = colorMatch, colorReset
	}

	fmt.Fprintln(w, paint(colorGray, fmt.Sprintf("%d results (%v)", result.Total, result.Elapsed)))
	if len(result.Entries) == 0 {
		fmt.Fprintln(w, paint(colorYellow, "No results found."))
		return
	}

	for _, e := range result.Entries {
		fmt.Fprintln(w)
		score := ""
		if e.Score != nil {
			score = fmt.Sprintf("%.3f ", *e.Score)
		}
		fmt.Fprintf(w, "%s%s\n", paint(colorYellow, score), paint(colorBold, e.Title.Highlight(prefix, suffix)))
		fmt.Fprintln(w, paint(colorGray, e.URL))
		if text := e.Text.Highlight(prefix, suffix); text != "" {
			fmt.Fprintln(w, text)
		}
	}

	if result.NewOffset != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, paint(colorGray, fmt.Sprintf("%d more, continue with --offset %d", result.Remaining-len(result.Entries), *result.NewOffset)))
	}
}
