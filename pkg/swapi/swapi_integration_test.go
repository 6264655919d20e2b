//go:build integration

package swapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/api-enricher/internal/testutil"
	"github.com/Sternrassler/api-enricher/pkg/client"
	"github.com/Sternrassler/api-enricher/pkg/enrich"
	"github.com/Sternrassler/api-enricher/pkg/fetch"
	"github.com/Sternrassler/api-enricher/pkg/pagination"
)

// setupRedis starts a Redis container for the HTTP response cache.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, rdb.Ping(ctx).Err())

	t.Cleanup(func() {
		rdb.Close()
		container.Terminate(ctx)
	})
	return rdb
}

func conditional(t *testing.T, mock *testutil.MockAPI, path string, v any) {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	mock.SetHandler(path, testutil.NewConditionalHandler(`"`+path+`"`, string(body)))
}

// TestVehiclesJob_ResponseCacheAcrossRuns checks that a second run, with a
// fresh resolution cache, revalidates every resource with the server
// instead of downloading it again.
func TestVehiclesJob_ResponseCacheAcrossRuns(t *testing.T) {
	rdb := setupRedis(t)

	mock := testutil.NewMockAPI()
	defer mock.Close()

	u := mock.URL
	conditional(t, mock, "/api/vehicles/", map[string]any{
		"next": nil,
		"results": []any{map[string]any{
			"name": "Snowspeeder", "model": "t-47 airspeeder", "vehicle_class": "airspeeder",
			"edited": "e", "pilots": []any{u("/api/people/1/")},
		}},
	})
	conditional(t, mock, "/api/people/1/", map[string]any{
		"name": "Luke Skywalker", "species": []any{}, "homeworld": u("/api/planets/1/"),
		"films": []any{u("/api/films/1/")}, "edited": "2014-12-20",
	})
	conditional(t, mock, "/api/planets/1/", map[string]any{"name": "Tatooine"})
	conditional(t, mock, "/api/films/1/", map[string]any{"title": "A New Hope"})

	cfg := client.DefaultConfig("enricher-test/1.0")
	cfg.Redis = rdb
	cfg.RateLimit = 0
	cfg.MaxRetries = 1
	c, err := client.New(cfg)
	require.NoError(t, err)
	defer c.Close()

	fetcher, err := fetch.NewHTTPFetcher(c, fetch.DefaultConfig())
	require.NoError(t, err)
	pages, err := pagination.NewHTTPPageFetcher(c, pagination.SWAPIFormat)
	require.NoError(t, err)
	engine, err := enrich.New(fetcher, pages, enrich.DefaultConfig())
	require.NoError(t, err)

	ctx := context.Background()

	first, err := engine.Run(ctx, VehiclesJob(u("/api")))
	require.NoError(t, err)
	assert.Equal(t, 4, mock.GetRequestCount())
	assert.Equal(t, 0, mock.GetConditionalCount())

	time.Sleep(100 * time.Millisecond)

	second, err := engine.Run(ctx, VehiclesJob(u("/api")))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 8, mock.GetRequestCount())
	assert.Equal(t, 4, mock.GetConditionalCount())
}
