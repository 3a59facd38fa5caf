package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Search the index interactively",
	Long: `Opens a terminal UI that runs a semantic search for every query you
enter and lets you step through the matching products.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd, func(ctx context.Context, svc *services) error {
			p := tea.NewProgram(newBrowser(ctx, svc.search, searchLimit),
				tea.WithContext(ctx), tea.WithAltScreen(),
				tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))
			_, err := p.Run()
			return err
		})
	},
}

func init() {
	browseCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of candidates")
	rootCmd.AddCommand(browseCmd)
}
