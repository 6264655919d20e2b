package main

import (
	"github.com/spf13/cobra"

	"github.com/Sternrassler/api-enricher/pkg/pagination"
	"github.com/Sternrassler/api-enricher/pkg/resource"
	"github.com/Sternrassler/api-enricher/pkg/swapi"
)

func newGrievousCmd(a *app) *cobra.Command {
	var (
		output   string
		search   string
		minFilms int
	)

	cmd := &cobra.Command{
		Use:   "grievous",
		Short: "Report the characters sharing a film with a SWAPI character",
		Long: `Searches SWAPI for a character (General Grievous by default), collects
every character of that character's films and enriches them with species,
films and film_count. Non-droid characters in at least --min-films films are
logged; every character is written to the CSV report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient(nil)
			if err != nil {
				return err
			}
			defer c.Close()

			engine, err := a.newEngine(c, pagination.SWAPIFormat)
			if err != nil {
				return err
			}

			run := engine.NewRun()
			characters, err := swapi.RelatedCharacters(cmd.Context(), run, a.cfg.SWAPIBaseURL, search)
			if err != nil {
				return err
			}

			keep := swapi.NotDroidInFilms(minFilms)
			var kept []resource.Resource
			for _, ch := range characters {
				if keep(ch) {
					kept = append(kept, ch)
				}
			}

			if len(kept) == 0 {
				a.logger.Info().Msg("No valid characters found")
			}
			for _, ch := range kept {
				a.logger.Info().
					Str("name", ch.String("name")).
					Interface("species", ch["species"]).
					Interface("film_count", ch["film_count"]).
					Msg("Filtered character")
			}

			return writeCSV(cmd, output, swapi.GrievousColumns, characters)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "grievous_related_characters.csv", `output file ("-" for stdout)`)
	cmd.Flags().StringVar(&search, "search", "grievous", "people search term")
	cmd.Flags().IntVar(&minFilms, "min-films", 2, "minimum films for the filtered log")
	return cmd
}
