package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"zweefhulp/internal/models"
	"zweefhulp/internal/search"
	"zweefhulp/internal/slug"
)

var (
	searchJSON        bool
	searchInteractive bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Answer a policy question for every party",
	Long: `Runs one search through the full pipeline, including the result cache,
and prints the positions of every party. With -i, questions are read
from standard input until "exit".`,
	Args: func(cmd *cobra.Command, args []string) error {
		if searchInteractive {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print the API response as JSON")
	searchCmd.Flags().BoolVarP(&searchInteractive, "interactive", "i", false, "read questions from standard input")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	if searchInteractive {
		return runInteractive(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), orch)
	}

	resp, err := orch.Search(ctx, args[0])
	if err != nil {
		return describeSearchError(err)
	}
	if searchJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprint(cmd.OutOrStdout(), formatResponse(resp))
	return nil
}

type searcher interface {
	Search(ctx context.Context, raw string) (*models.SearchResponse, error)
}

func runInteractive(ctx context.Context, in io.Reader, out io.Writer, s searcher) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "Stel een vraag over een beleidsonderwerp (typ 'exit' om te stoppen)")

	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		resp, err := s.Search(ctx, input)
		if err != nil {
			fmt.Fprintln(out, describeSearchError(err))
			continue
		}
		fmt.Fprint(out, formatResponse(resp))
	}
}

// describeSearchError turns user-facing failures into their message.
func describeSearchError(err error) error {
	var rejected *search.RejectedError
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		return errors.New("geef een zoekterm op")
	case errors.As(err, &rejected):
		return errors.New(rejected.Message)
	default:
		return fmt.Errorf("search failed: %w", err)
	}
}

// formatResponse renders a response as plain text, parties with positions
// first, then the parties that have nothing to say about the query.
func formatResponse(resp *models.SearchResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  (/%s)\n", resp.Query, slug.Slugify(resp.Query))
	if resp.Cached {
		sb.WriteString("(uit cache)\n")
	}

	var silent []string
	for _, p := range resp.Parties {
		if len(p.Positions) == 0 {
			silent = append(silent, p.Short)
			continue
		}
		fmt.Fprintf(&sb, "\n%s (%d citaten) %s\n", p.Party, p.Count, p.Website)
		if p.Summary != "" {
			fmt.Fprintf(&sb, "  %s\n", p.Summary)
		}
		for i, pos := range p.Positions {
			fmt.Fprintf(&sb, "  %d. %s\n", i+1, pos.Title)
			fmt.Fprintf(&sb, "     %s\n", pos.Subtitle)
			for _, q := range pos.Quotes {
				fmt.Fprintf(&sb, "     - %q (p. %d)\n", q.Text, q.Page)
			}
		}
	}
	if len(silent) > 0 {
		fmt.Fprintf(&sb, "\nGeen standpunten gevonden: %s\n", strings.Join(silent, ", "))
	}
	return sb.String()
}
