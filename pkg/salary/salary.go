// Package salary computes the total salary of each employee's team (the
// employee plus everyone reporting to them, directly or not) using a local
// SQLite database.
package salary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/api-enricher/pkg/resource"
)

// DefaultURL is the employees endpoint.
const DefaultURL = "https://apim.workato.com/taboola-dev/homework-exam-v1/api/get_employees"

// TokenHeader carries the API token of the employees endpoint.
const TokenHeader = "API-TOKEN"

// ErrNoEmployees is returned when the payload has no employees list.
var ErrNoEmployees = errors.New("no valid employee data")

// Columns are the CSV columns of the report.
var Columns = []string{"EmployeeID", "TotalTeamSalary"}

// Employee is one row of the Employees table. ManagerID is nil for the top
// of the hierarchy.
type Employee struct {
	EmployeeID int    `mapstructure:"EmployeeID"`
	Name       string `mapstructure:"Name"`
	Salary     int64  `mapstructure:"Salary"`
	ManagerID  *int   `mapstructure:"ManagerID"`
}

// TeamSalary is one result row.
type TeamSalary struct {
	EmployeeID      int64
	TotalTeamSalary int64
}

// JSONGetter is the part of the HTTP client the fetch needs.
type JSONGetter interface {
	GetJSON(ctx context.Context, rawURL string, v any) error
}

// FetchPayload downloads the employees document. A failed download is
// logged and yields an empty payload, which Employees then rejects.
func FetchPayload(ctx context.Context, getter JSONGetter, url string) map[string]any {
	var payload map[string]any
	if err := getter.GetJSON(ctx, url, &payload); err != nil || payload == nil {
		log.Warn().Err(err).Str("url", url).Msg("Employee fetch failed, using empty payload")
		return map[string]any{"employees": ""}
	}
	log.Info().Str("url", url).Msg("Fetched employee data")
	return payload
}

// Employees extracts and decodes the "employees" list of payload.
func Employees(payload map[string]any) ([]Employee, error) {
	raw, ok := payload["employees"].([]any)
	if !ok {
		return nil, ErrNoEmployees
	}

	employees := make([]Employee, 0, len(raw))
	for i, item := range raw {
		var e Employee
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &e,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(item); err != nil {
			return nil, fmt.Errorf("decode employee %d: %w", i, err)
		}
		employees = append(employees, e)
	}
	return employees, nil
}

// OpenDB opens a SQLite database. ":memory:" gives a private in-memory
// database; the pool is limited to one connection so it stays shared.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

const createTable = `
CREATE TABLE IF NOT EXISTS Employees (
	EmployeeID INTEGER PRIMARY KEY,
	Name TEXT,
	Salary INTEGER,
	ManagerID INTEGER
);`

// Load creates the Employees table and inserts employees in one transaction.
func Load(ctx context.Context, db *sql.DB, employees []Employee) error {
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO Employees (EmployeeID, Name, Salary, ManagerID) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range employees {
		var manager sql.NullInt64
		if e.ManagerID != nil {
			manager = sql.NullInt64{Int64: int64(*e.ManagerID), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, e.EmployeeID, e.Name, e.Salary, manager); err != nil {
			return fmt.Errorf("insert employee %d: %w", e.EmployeeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Info().Int("employees", len(employees)).Msg("Inserted employees")
	return nil
}

const teamSalaryQuery = `
WITH RECURSIVE TeamHierarchy AS (
	SELECT EmployeeID, ManagerID, Salary, EmployeeID AS RootEmployee
	FROM Employees
	WHERE EmployeeID IS NOT NULL

	UNION ALL

	SELECT e.EmployeeID, e.ManagerID, e.Salary, th.RootEmployee
	FROM Employees e
	JOIN TeamHierarchy th ON e.ManagerID = th.EmployeeID
	WHERE e.EmployeeID != e.ManagerID
)
SELECT RootEmployee AS EmployeeID, SUM(Salary) AS TotalTeamSalary
FROM TeamHierarchy
GROUP BY RootEmployee
ORDER BY EmployeeID;`

// TotalTeamSalaries returns every employee's team salary ordered by id.
func TotalTeamSalaries(ctx context.Context, db *sql.DB) ([]TeamSalary, error) {
	rows, err := db.QueryContext(ctx, teamSalaryQuery)
	if err != nil {
		return nil, fmt.Errorf("query team salaries: %w", err)
	}
	defer rows.Close()

	var out []TeamSalary
	for rows.Next() {
		var ts TeamSalary
		var total sql.NullInt64
		if err := rows.Scan(&ts.EmployeeID, &total); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ts.TotalTeamSalary = total.Int64
		out = append(out, ts)
	}
	return out, rows.Err()
}

// Report runs the whole rollup on an in-memory database.
func Report(ctx context.Context, payload map[string]any) ([]TeamSalary, error) {
	employees, err := Employees(payload)
	if err != nil {
		return nil, err
	}

	db, err := OpenDB(":memory:")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := Load(ctx, db, employees); err != nil {
		return nil, err
	}
	return TotalTeamSalaries(ctx, db)
}

// Records converts results for the CSV writer.
func Records(results []TeamSalary) []resource.Resource {
	out := make([]resource.Resource, 0, len(results))
	for _, r := range results {
		out = append(out, resource.Resource{
			"EmployeeID":      r.EmployeeID,
			"TotalTeamSalary": r.TotalTeamSalary,
		})
	}
	return out
}
