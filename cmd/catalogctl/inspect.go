package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/m1520n/rag-chatbot/engine/domain"
	"github.com/m1520n/rag-chatbot/engine/indexing"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog and index counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd, func(ctx context.Context, svc *services) error {
			sum, err := svc.indexer.Status(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Active products: %d\n", sum.TotalCatalogCount)
			cmd.Printf("Indexed:         %d\n", sum.IndexedCount)
			if sum.LastIndexedAt != nil {
				cmd.Printf("Last rebuild:    %s\n", sum.LastIndexedAt.Format(time.RFC3339))
			}
			return nil
		})
	},
}

var (
	previewPage    int
	previewPerPage int
	previewEmpty   []string
	previewJSON    bool
)

var previewCmd = &cobra.Command{
	Use:   "preview [product-id]",
	Short: "Show how products are normalised and embedded",
	Long: `Embeds a page of active catalog products without touching the index
and prints the cleaned text, category and leading vector dimensions. Given a
product id, previews only that product.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().IntVar(&previewPage, "page", 1, "page number")
	previewCmd.Flags().IntVar(&previewPerPage, "per-page", 10, "products per page")
	previewCmd.Flags().StringSliceVar(&previewEmpty, "empty", nil, "only products missing these fields (name, description, tags)")
	previewCmd.Flags().BoolVar(&previewJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd, previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	var filters []domain.CatalogFilter
	for _, v := range previewEmpty {
		f, ok := domain.ParseCatalogFilter(v)
		if !ok {
			return fmt.Errorf("unknown field %q", v)
		}
		filters = append(filters, f)
	}

	return withServices(cmd, func(ctx context.Context, svc *services) error {
		if len(args) == 1 {
			item, err := svc.indexer.PreviewOne(ctx, args[0])
			if err != nil {
				return err
			}
			if previewJSON {
				return printJSON(cmd, item)
			}
			printItem(cmd, item)
			return nil
		}

		page, err := svc.indexer.Preview(ctx, previewPage, previewPerPage, filters...)
		if err != nil {
			return err
		}
		if previewJSON {
			return printJSON(cmd, page)
		}
		if len(page.Items) == 0 {
			cmd.Println("No products found.")
			return nil
		}
		for _, item := range page.Items {
			printItem(cmd, item)
		}
		p := page.Pagination
		cmd.Printf("Page %d of %d (%d products)\n", p.Page, p.TotalPages, p.Total)
		return nil
	})
}

func printItem(cmd *cobra.Command, item indexing.PreviewItem) {
	mark := " "
	if item.IsIndexed {
		mark = "*"
	}
	cmd.Printf("%s [%s] %s (%s)\n", mark, item.ID, item.Processed.Name, item.Processed.Category)
	if item.Processed.Tags != "" {
		cmd.Printf("    tags: %s\n", item.Processed.Tags)
	}
	if item.Error != "" {
		cmd.Printf("    error: %s\n", item.Error)
		return
	}
	dims := make([]string, len(item.Vector))
	for i, v := range item.Vector {
		dims[i] = fmt.Sprintf("%.4f", v)
	}
	cmd.Printf("    vector[%d]: %s ...\n", item.Dims, strings.Join(dims, " "))
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the product index",
	Long: `Embeds the query and returns the products within the adaptive
distance threshold, closest first.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of candidates")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := domain.ValidateQuery(args[0]); err != nil {
		return err
	}
	return withServices(cmd, func(ctx context.Context, svc *services) error {
		products, err := svc.search.SearchText(ctx, args[0], nil, searchLimit)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if searchJSON {
			return printJSON(cmd, products)
		}
		if len(products) == 0 {
			cmd.Println("No results found.")
			return nil
		}
		for i, p := range products {
			cmd.Printf("  [%d] %s (%.3f)\n", i+1, p.Name, p.Score)
			cmd.Printf("      %s\n", p.URL)
		}
		return nil
	})
}
