package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/api-enricher/pkg/salary"
)

func newTeamSalaryCmd(a *app) *cobra.Command {
	var (
		output string
		dsn    string
	)

	cmd := &cobra.Command{
		Use:   "team-salary",
		Short: "Compute each employee's total team salary",
		Long: `Downloads the employee list (authenticated with the API-TOKEN header),
loads it into SQLite and sums, for every employee, their own salary and
that of everyone reporting to them directly or indirectly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			headers := map[string]string{}
			if a.cfg.APIToken != "" {
				headers[salary.TokenHeader] = a.cfg.APIToken
			} else {
				a.logger.Warn().Msg("No API token configured")
			}

			c, err := a.newClient(headers)
			if err != nil {
				return err
			}
			defer c.Close()

			employees, err := salary.Employees(salary.FetchPayload(ctx, c, a.cfg.EmployeesURL))
			if err != nil {
				return err
			}

			db, err := salary.OpenDB(dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := salary.Load(ctx, db, employees); err != nil {
				return err
			}
			results, err := salary.TotalTeamSalaries(ctx, db)
			if err != nil {
				return err
			}

			if err := writeCSV(cmd, output, salary.Columns, salary.Records(results)); err != nil {
				return err
			}

			if output != "-" {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "EmployeeID  TotalTeamSalary")
				for i, r := range results {
					if i == 5 {
						break
					}
					fmt.Fprintf(out, "%10d  %15d\n", r.EmployeeID, r.TotalTeamSalary)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "team_salary_results.csv", `output file ("-" for stdout)`)
	cmd.Flags().StringVar(&dsn, "db", ":memory:", "SQLite database (file path or :memory:)")
	return cmd
}
