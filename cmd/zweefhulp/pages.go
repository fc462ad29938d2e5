package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Report the number of ingested pages per program",
	Args:  cobra.NoArgs,
	RunE:  runPages,
}

func init() {
	rootCmd.AddCommand(pagesCmd)
}

func runPages(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.repo.PageStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("page stats: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PARTY\tPAGES\tPROGRAM")
	total := 0
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%s\n", s.Party, s.Pages, s.FileName)
		total += s.Pages
	}
	fmt.Fprintf(w, "\t%d\ttotal over %d programs\n", total, len(stats))
	return w.Flush()
}
