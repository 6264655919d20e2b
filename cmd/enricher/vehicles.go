package main

import (
	"github.com/spf13/cobra"

	"github.com/Sternrassler/api-enricher/pkg/pagination"
	"github.com/Sternrassler/api-enricher/pkg/swapi"
)

func newVehiclesCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "List every SWAPI vehicle with its pilots resolved",
		Long: `Fetches all vehicles and embeds each pilot as
{name, species, homeworld, films, edited} with species and homeworld
resolved to names and films to titles. Unreachable pilots are dropped.`,
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

			vehicles, err := engine.Run(cmd.Context(), swapi.VehiclesJob(a.cfg.SWAPIBaseURL))
			if err != nil {
				return err
			}

			return writeJSON(cmd, output, vehicles)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "vehicles.json", `output file ("-" for stdout)`)
	return cmd
}
