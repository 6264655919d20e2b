package tripin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/api-enricher/internal/testutil"
	"github.com/Sternrassler/api-enricher/pkg/client"
	"github.com/Sternrassler/api-enricher/pkg/pagination"
	"github.com/Sternrassler/api-enricher/pkg/resource"
)

func distance(d float64) *float64 { return &d }

func TestDecode(t *testing.T) {
	records := []resource.Resource{{
		"UserName": "russellwhyte",
		"Trips": []any{map[string]any{
			"TripId": 0.0,
			"Name":   "Trip in US",
			"PlanItems": []any{
				map[string]any{"PlanItemId": 11.0, "FlightNumber": "AA4035", "Distance": 1250.5},
				map[string]any{"PlanItemId": 12.0, "ConfirmationCode": "JH58493"},
			},
		}},
	}}

	people, err := Decode(records)
	require.NoError(t, err)
	require.Len(t, people, 1)

	items := people[0].Trips[0].PlanItems
	assert.Equal(t, "russellwhyte", people[0].UserName)
	assert.Equal(t, "Trip in US", people[0].Trips[0].Name)
	assert.Equal(t, "AA4035", items[0].FlightNumber)
	require.NotNil(t, items[0].Distance)
	assert.Equal(t, 1250.5, *items[0].Distance)
	assert.Nil(t, items[1].Distance)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]resource.Resource{{"Trips": "nope"}})
	assert.Error(t, err)
}

func TestMultiAirline(t *testing.T) {
	people := []Person{
		{UserName: "one", Trips: []Trip{{PlanItems: []PlanItem{{FlightNumber: "AA26"}, {FlightNumber: "aa27"}}}}},
		{UserName: "two", Trips: []Trip{
			{PlanItems: []PlanItem{{FlightNumber: "MU1"}}},
			{PlanItems: []PlanItem{{FlightNumber: "aa44"}, {FlightNumber: "X"}, {}}},
		}},
		{UserName: "none"},
	}

	got := MultiAirline(WithTrips(people), 2)
	require.Len(t, got, 1)
	assert.Equal(t, "two", got[0].UserName)
	assert.Equal(t, []string{"AA", "MU"}, got[0].AirlinePrefixes)
}

func TestLongestFlight(t *testing.T) {
	travelers := []Traveler{
		{Person: Person{UserName: "a", Trips: []Trip{{PlanItems: []PlanItem{{Distance: distance(500)}, {}}}}}, AirlinePrefixes: []string{"AA", "MU"}},
		{Person: Person{UserName: "b", Trips: []Trip{{PlanItems: []PlanItem{{Distance: distance(900)}}}}}, AirlinePrefixes: []string{"FM", "MU"}},
		{Person: Person{UserName: "c", Trips: []Trip{{PlanItems: []PlanItem{{Distance: distance(900)}}}}}, AirlinePrefixes: []string{"AA", "FM"}},
	}

	got := LongestFlight(travelers)
	require.NotNil(t, got)
	assert.Equal(t, &Flight{UserName: "b", Distance: 900, Airlines: []string{"FM", "MU"}}, got)

	assert.Nil(t, LongestFlight([]Traveler{{Person: Person{UserName: "x", Trips: []Trip{{}}}}}))
	assert.Nil(t, LongestFlight(nil))
}

func TestPeopleURL(t *testing.T) {
	assert.Equal(t,
		"https://services.odata.org/V4/TripPinServiceRW/People?$filter=Trips/any(t:%20true)&$expand=Trips($expand=PlanItems)&$select=UserName,Trips",
		PeopleURL(DefaultBaseURL+"/"))
}

func TestFetchPeople(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetJSON("/People", map[string]any{
		"value": []any{map[string]any{
			"UserName": "russellwhyte",
			"Trips":    []any{map[string]any{"TripId": 1.0, "PlanItems": []any{map[string]any{"FlightNumber": "AA26", "Distance": 100.0}}}},
		}},
		"@odata.nextLink": mock.URL("/People?$skiptoken=8"),
	})
	mock.SetJSON("/People?$skiptoken=8", map[string]any{
		"value": []any{map[string]any{"UserName": "scottketchum", "Trips": []any{}}},
	})

	cfg := client.DefaultConfig("enricher-test/1.0")
	cfg.RateLimit = 0
	cfg.MaxRetries = 1
	cfg.InitialBackoff = time.Millisecond
	c, err := client.New(cfg)
	require.NoError(t, err)
	defer c.Close()

	pages, err := pagination.NewHTTPPageFetcher(c, pagination.ODataFormat)
	require.NoError(t, err)

	people, err := FetchPeople(context.Background(), pagination.New(pages, pagination.DefaultConfig()), mock.URL())
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, "russellwhyte", people[0].UserName)
	assert.Len(t, WithTrips(people), 1)
}
