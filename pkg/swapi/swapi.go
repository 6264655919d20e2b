// Package swapi defines the Star Wars API enrichment jobs: vehicles with
// their pilots, and the characters sharing films with a searched character.
package swapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/api-enricher/pkg/enrich"
	"github.com/Sternrassler/api-enricher/pkg/resource"
)

// DefaultBaseURL is the public SWAPI root.
const DefaultBaseURL = "https://swapi.dev/api"

// ErrCharacterNotFound is returned when a people search has no match.
var ErrCharacterNotFound = errors.New("character not found")

// GrievousColumns are the CSV columns of the related characters report.
// Film titles are left out; film_count carries their number.
var GrievousColumns = []string{"name", "species", "edited", "film_count"}

// PilotPlan resolves the references of a person record to display values.
func PilotPlan() enrich.Plan {
	return enrich.Plan{
		{Field: "species", Cardinality: enrich.Single, Target: "name"},
		{Field: "homeworld", Cardinality: enrich.Single, Target: "name"},
		{Field: "films", Cardinality: enrich.List, Target: "title"},
	}
}

// VehiclesJob lists every vehicle with its pilots embedded as
// {name, species, homeworld, films, edited} records.
func VehiclesJob(base string) enrich.Job {
	return enrich.Job{
		Name: "vehicles",
		Root: endpoint(base, "vehicles/"),
		Projection: resource.Projection{
			Fields: []string{"name", "model", "vehicle_class", "edited", "pilots"},
			Rename: map[string]string{"vehicle_class": "class"},
		},
		Plan: enrich.Plan{{
			Field:       "pilots",
			Cardinality: enrich.List,
			Project:     []string{"name", "species", "homeworld", "films", "edited"},
			Plan:        PilotPlan(),
		}},
	}
}

// CharactersJob enriches person records to {name, species, edited, films,
// film_count}.
func CharactersJob() enrich.Job {
	return enrich.Job{
		Name: "characters",
		Projection: resource.Projection{
			Fields: []string{"name", "species", "edited", "films"},
		},
		Plan: enrich.Plan{
			{Field: "species", Cardinality: enrich.Single, Target: "name"},
			{Field: "films", Cardinality: enrich.List, Target: "title"},
		},
		Derive: FilmCount,
	}
}

// FilmCount sets film_count to the number of resolved films.
func FilmCount(r resource.Resource) resource.Resource {
	films, _ := r["films"].([]any)
	r["film_count"] = len(films)
	return r
}

// NotDroidInFilms keeps characters whose species is not "droid" (case
// insensitive, unknown species pass) and who appear in at least min films.
func NotDroidInFilms(min int) func(resource.Resource) bool {
	return func(r resource.Resource) bool {
		if strings.EqualFold(r.String("species"), "droid") {
			return false
		}
		count, _ := r["film_count"].(int)
		return count >= min
	}
}

// RelatedCharacters finds the first person matching search and returns every
// character appearing in any of that person's films, enriched with
// CharactersJob. Characters are ordered by first appearance.
func RelatedCharacters(ctx context.Context, run *enrich.Run, base, search string) ([]resource.Resource, error) {
	logger := log.With().Str("component", "swapi").Str("run_id", run.ID).Logger()

	searchURL := endpoint(base, "people/") + "?search=" + url.QueryEscape(search)
	matches, err := run.Collect(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", search, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrCharacterNotFound, search)
	}

	match := matches[0]
	logger.Info().Str("name", match.String("name")).Msg("Character found")

	films, _ := match["films"].([]any)
	seen := make(map[string]struct{})
	var ids []string
	for _, f := range films {
		filmURL, ok := f.(string)
		if !ok || filmURL == "" {
			continue
		}
		film, ok := run.Resolve(ctx, filmURL)
		if !ok {
			logger.Warn().Str("film", filmURL).Msg("Film absent, skipping its characters")
			continue
		}
		characters, _ := film["characters"].([]any)
		for _, c := range characters {
			id, ok := c.(string)
			if !ok || id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	logger.Info().Int("characters", len(ids)).Msg("Related characters collected")

	return run.EnrichIdentifiers(ctx, ids, CharactersJob())
}

func endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + path
}
