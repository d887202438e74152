package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macrolens/productcheck/internal/domain"
	"github.com/macrolens/productcheck/internal/usecase"
)

var suggestFilters domain.SearchFilters

var suggestCmd = &cobra.Command{
	Use:   "suggest [query]",
	Short: "List product name suggestions",
	Long: `Searches the internal catalog and, when it has few matches, the external
product databases. Catalog names are listed first.`,
	Args: cobra.ExactArgs(1),
	RunE: runSuggest,
}

func init() {
	suggestCmd.Flags().StringVar(&suggestFilters.Category, "category", "", "only catalog products in this category")
	suggestCmd.Flags().StringSliceVar(&suggestFilters.NutriScore, "nutri-score", nil, "only catalog products with these Nutri-Scores")
	suggestCmd.Flags().StringVar(&suggestFilters.Country, "country", "", "only catalog products from this country")
	suggestCmd.Flags().StringVar(&suggestFilters.State, "state", "", "only catalog products from this state")
	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	q, err := domain.ParseQuery(args[0], core.Aggregator.MinQueryLength())
	if err != nil {
		if errors.Is(err, domain.ErrQueryTooShort) {
			return fmt.Errorf("query must be at least %d characters", core.Aggregator.MinQueryLength())
		}
		return err
	}

	set, err := core.Aggregator.Suggest(context.Background(), q, suggestFilters, nil)
	if err != nil {
		return fmt.Errorf("suggest failed: %w", err)
	}

	if outputJSON {
		return printJSON(cmd, set)
	}
	printSuggestions(cmd, set)
	return nil
}

func printSuggestions(cmd *cobra.Command, set usecase.SuggestionSet) {
	if set.Len() == 0 {
		cmd.Println("No suggestions.")
		return
	}
	for i := 0; i < set.Len(); i++ {
		item, _ := set.At(i)
		if !item.IsExternal() {
			cmd.Printf("[%d] %s\n", i+1, item.Name)
			continue
		}
		p := item.External
		line := fmt.Sprintf("[%d] %s", i+1, p.Name)
		if p.Brand != "" {
			line += " - " + p.Brand
		}
		cmd.Printf("%s (%s, %d%%)\n", line, p.Source, domain.ConfidencePercent(p.Confidence))
	}
}
