// Package tripin analyses the flights of the OData TripPin sample service.
package tripin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/Sternrassler/api-enricher/pkg/pagination"
	"github.com/Sternrassler/api-enricher/pkg/resource"
)

// DefaultBaseURL is the public TripPin service root.
const DefaultBaseURL = "https://services.odata.org/V4/TripPinServiceRW"

// Person is a TripPin person with expanded trips.
type Person struct {
	UserName string `mapstructure:"UserName" json:"UserName"`
	Trips    []Trip `mapstructure:"Trips" json:"Trips"`
}

// Trip is one trip of a person.
type Trip struct {
	TripID    int        `mapstructure:"TripId" json:"TripId"`
	Name      string     `mapstructure:"Name" json:"Name"`
	PlanItems []PlanItem `mapstructure:"PlanItems" json:"PlanItems"`
}

// PlanItem is a reservation within a trip. Only flights carry a flight
// number; Distance is nil when the service omits it.
type PlanItem struct {
	PlanItemID   int      `mapstructure:"PlanItemId" json:"PlanItemId"`
	FlightNumber string   `mapstructure:"FlightNumber" json:"FlightNumber,omitempty"`
	Distance     *float64 `mapstructure:"Distance" json:"Distance,omitempty"`
}

// Traveler is a person together with the airlines they have flown.
type Traveler struct {
	Person
	AirlinePrefixes []string `json:"AirlinePrefixes"`
}

// Flight is the result of LongestFlight.
type Flight struct {
	UserName string   `json:"UserName"`
	Distance float64  `json:"Distance"`
	Airlines []string `json:"Airlines"`
}

// PeopleURL is the query for people with at least one trip, their trips and
// the trips' plan items.
func PeopleURL(base string) string {
	return strings.TrimRight(base, "/") +
		"/People?$filter=Trips/any(t:%20true)&$expand=Trips($expand=PlanItems)&$select=UserName,Trips"
}

// FetchPeople collects every page of the people query and decodes it.
func FetchPeople(ctx context.Context, p *pagination.Paginator, base string) ([]Person, error) {
	records, err := p.All(ctx, PeopleURL(base))
	if err != nil {
		return nil, err
	}
	return Decode(records)
}

// Decode converts raw people records into typed values.
func Decode(records []resource.Resource) ([]Person, error) {
	people := make([]Person, 0, len(records))
	for i, rec := range records {
		var person Person
		if err := mapstructure.Decode(map[string]any(rec), &person); err != nil {
			return nil, fmt.Errorf("decode person %d: %w", i, err)
		}
		people = append(people, person)
	}
	return people, nil
}

// WithTrips keeps people that have at least one trip.
func WithTrips(people []Person) []Person {
	out := make([]Person, 0, len(people))
	for _, p := range people {
		if len(p.Trips) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// AirlinePrefixes returns the distinct, upper-cased two-letter prefixes of
// every flight number of p, sorted.
func AirlinePrefixes(p Person) []string {
	set := make(map[string]struct{})
	for _, trip := range p.Trips {
		for _, item := range trip.PlanItems {
			if len(item.FlightNumber) >= 2 {
				set[strings.ToUpper(item.FlightNumber[:2])] = struct{}{}
			}
		}
	}

	prefixes := make([]string, 0, len(set))
	for prefix := range set {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}

// MultiAirline keeps people who have flown with at least min airlines.
func MultiAirline(people []Person, min int) []Traveler {
	var out []Traveler
	for _, p := range people {
		prefixes := AirlinePrefixes(p)
		if len(prefixes) >= min {
			out = append(out, Traveler{Person: p, AirlinePrefixes: prefixes})
		}
	}
	return out
}

// LongestFlight returns the traveler with the single longest plan item by
// distance. The first one wins ties. It returns nil when no plan item has a
// distance.
func LongestFlight(travelers []Traveler) *Flight {
	var longest *Flight
	for _, t := range travelers {
		for _, trip := range t.Trips {
			for _, item := range trip.PlanItems {
				if item.Distance == nil {
					continue
				}
				if longest == nil || *item.Distance > longest.Distance {
					longest = &Flight{
						UserName: t.UserName,
						Distance: *item.Distance,
						Airlines: t.AirlinePrefixes,
					}
				}
			}
		}
	}
	return longest
}
