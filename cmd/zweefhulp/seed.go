package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zweefhulp/internal/models"
	"zweefhulp/internal/party"
)

var catalogPath string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create or update parties and programs from the party catalog",
	Long: `Upserts one party and one program row per catalog entry. Running it
again updates names, websites and years in place; ingested chunks are
left alone. Use the indexer to load program text.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&catalogPath, "catalog", "", "party catalog YAML (defaults to the built-in catalog)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	catalog, err := party.Load(catalogPath)
	if err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := seedCatalog(ctx, a.repo, catalog, a.log)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d parties\n", n)
	return nil
}

// seedRepository is the part of the store seeding writes to.
type seedRepository interface {
	UpsertParty(ctx context.Context, p models.Party) (string, error)
	UpsertProgram(ctx context.Context, p models.Program) (string, error)
}

func seedCatalog(ctx context.Context, repo seedRepository, catalog *party.Catalog, log zerolog.Logger) (int, error) {
	n := 0
	for _, e := range catalog.All() {
		partyID, err := repo.UpsertParty(ctx, e.Party())
		if err != nil {
			return n, fmt.Errorf("upsert party %s: %w", e.Name, err)
		}
		if e.Program.FileName != "" {
			_, err := repo.UpsertProgram(ctx, models.Program{
				FileName: e.Program.FileName,
				Year:     e.Program.Year,
				PartyID:  partyID,
			})
			if err != nil {
				return n, fmt.Errorf("upsert program %s: %w", e.Program.FileName, err)
			}
		}
		log.Info().Str("party", e.Name).Str("program", e.Program.FileName).Msg("party seeded")
		n++
	}
	return n, nil
}
