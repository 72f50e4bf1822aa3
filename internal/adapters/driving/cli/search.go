package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

var (
	searchLimit  int
	searchJSON   bool
	searchSpace  string
	searchScopes []string
	searchAfter  string
	searchBefore string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Performs hybrid search across the indexed corpus.
Vector similarity, BM25 keyword relevance, and recency are fused into a
single ranking. Results are restricted to documents visible to the given
permission scopes and carry their source links for citation.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringVar(&searchSpace, "space", "", "restrict results to one space")
	searchCmd.Flags().StringSliceVar(&searchScopes, "scope", nil, "requester permission scopes (repeatable)")
	searchCmd.Flags().StringVar(&searchAfter, "after", "", "only documents modified after this time (RFC3339 or YYYY-MM-DD)")
	searchCmd.Flags().StringVar(&searchBefore, "before", "", "only documents modified before this time (RFC3339 or YYYY-MM-DD)")
	_ = searchCmd.MarkFlagRequired("scope")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	query := domain.Query{
		Text:  args[0],
		Limit: searchLimit,
		Filters: domain.Filters{
			Space:  searchSpace,
			Scopes: searchScopes,
		},
	}

	var err error
	if query.Filters.ModifiedAfter, err = parseTimeFlag(searchAfter); err != nil {
		return fmt.Errorf("invalid --after value: %w", err)
	}
	if query.Filters.ModifiedBefore, err = parseTimeFlag(searchBefore); err != nil {
		return fmt.Errorf("invalid --before value: %w", err)
	}

	results, err := searchService.Search(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results domain.ResultSet) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results domain.ResultSet) error {
	if len(results.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range results.Results {
		title := r.Title
		if title == "" {
			title = r.DocumentID
		}

		cmd.Printf("  [%d] %s (%.2f)\n", i+1, title, r.Score)
		if r.Space != "" {
			cmd.Printf("      Space: %s\n", r.Space)
		}
		if r.Link != "" {
			cmd.Printf("      Link: %s\n", r.Link)
		}
		if r.Snippet != "" {
			cmd.Printf("      %s\n", r.Snippet)
		}
		if len(r.AlsoFoundIn) > 0 {
			cmd.Printf("      Also found in chunks: %s\n", formatOrdinals(r.AlsoFoundIn))
		}
		cmd.Println()
	}

	if results.Partial {
		cmd.Println("Warning: a ranking signal was unavailable; results are keyword-only.")
	}

	return nil
}

func formatOrdinals(ordinals []int) string {
	parts := make([]string, len(ordinals))
	for i, o := range ordinals {
		parts[i] = fmt.Sprintf("%d", o)
	}
	return strings.Join(parts, ", ")
}

// parseTimeFlag accepts RFC3339 timestamps or plain dates.
func parseTimeFlag(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", v)
	}
	return t, nil
}
