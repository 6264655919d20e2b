package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/api-enricher/pkg/pagination"
	"github.com/Sternrassler/api-enricher/pkg/tripin"
)

type flightReport struct {
	Eligible []tripin.Traveler `json:"Eligible"`
	Longest  *tripin.Flight    `json:"Longest"`
}

func newLongestFlightCmd(a *app) *cobra.Command {
	var (
		output      string
		minAirlines int
	)

	cmd := &cobra.Command{
		Use:   "longest-flight",
		Short: "Find the TripPin traveler with the longest flight",
		Long: `Loads every TripPin person with trips, keeps those who flew with at least
--min-airlines distinct airlines (two-letter flight number prefixes) and
reports who took the single longest flight by distance.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient(nil)
			if err != nil {
				return err
			}
			defer c.Close()

			pages, err := pagination.NewHTTPPageFetcher(c, pagination.ODataFormat)
			if err != nil {
				return err
			}
			paginator := pagination.New(pages, pagination.Config{Timeout: a.cfg.Timeout})

			people, err := tripin.FetchPeople(cmd.Context(), paginator, a.cfg.TrippinBaseURL)
			if err != nil {
				return err
			}

			eligible := tripin.MultiAirline(tripin.WithTrips(people), minAirlines)
			longest := tripin.LongestFlight(eligible)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Eligible People: %d\n", len(eligible))
			fmt.Fprintln(out, "Usernames with multiple airline prefixes:")
			for _, t := range eligible {
				fmt.Fprintf(out, " - %s | Airlines: %s\n", t.UserName, strings.Join(t.AirlinePrefixes, ", "))
			}
			if longest != nil {
				fmt.Fprintf(out, "Longest Flight Taken By: %s\n", longest.UserName)
				fmt.Fprintf(out, "Distance: %g km\n", longest.Distance)
				fmt.Fprintf(out, "Airlines: %s\n", strings.Join(longest.Airlines, ", "))
			} else {
				fmt.Fprintln(out, "No flights with distance found among eligible people.")
			}

			if output != "" {
				return writeJSON(cmd, output, flightReport{Eligible: eligible, Longest: longest})
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the result as JSON to this file")
	cmd.Flags().IntVar(&minAirlines, "min-airlines", 2, "minimum distinct airlines")
	return cmd
}
