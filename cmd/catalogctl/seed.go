package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m1520n/rag-chatbot/engine/domain"
)

// seedRecord is the JSON shape of one product in a seed file.
type seedRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Description2 string `json:"description2"`
	Tags         string `json:"tags"`
	Active       *bool  `json:"active"`
}

func (r seedRecord) record() domain.ProductRecord {
	active := r.Active == nil || *r.Active
	return domain.ProductRecord{
		ID:           r.ID,
		Name:         r.Name,
		Descriptions: []string{r.Description, r.Description2},
		Tags:         r.Tags,
		Active:       active,
	}
}

var seedCmd = &cobra.Command{
	Use:   "seed [file.json]",
	Short: "Load products from a JSON file into the catalog",
	Long: `Reads a JSON array of products ({id, name, description, description2,
tags, active}) and inserts or replaces them in the configured catalog.
Products are active unless "active" is false.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var recs []seedRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	return withServices(cmd, func(ctx context.Context, svc *services) error {
		for i, r := range recs {
			if err := svc.writer.Insert(ctx, r.record()); err != nil {
				return fmt.Errorf("product %d: %w", i+1, err)
			}
		}
		cmd.Printf("Seeded %d products.\n", len(recs))
		return nil
	})
}
