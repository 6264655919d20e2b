package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mockapi "github.com/Sternrassler/api-enricher/internal/testutil"
	"github.com/Sternrassler/api-enricher/pkg/client"
	"github.com/Sternrassler/api-enricher/pkg/resource"
)

// pages builds a fake listing: url -> page.
type pages map[string]Page

func (p pages) fetcher(calls *[]string) PageFetcherFunc {
	return func(_ context.Context, url string) (Page, error) {
		if calls != nil {
			*calls = append(*calls, url)
		}
		page, ok := p[url]
		if !ok {
			return Page{}, fmt.Errorf("no page %s", url)
		}
		return page, nil
	}
}

func names(records []resource.Resource) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.String("name"))
	}
	return out
}

func TestPaginator_All_PreservesOrder(t *testing.T) {
	listing := pages{
		"p1": {Results: []resource.Resource{{"name": "a"}, {"name": "b"}}, Next: "p2"},
		"p2": {Results: []resource.Resource{}, Next: "p3"},
		"p3": {Results: []resource.Resource{{"name": "c"}}},
	}

	var calls []string
	p := New(listing.fetcher(&calls), DefaultConfig())

	got, err := p.All(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names(got))
	assert.Equal(t, []string{"p1", "p2", "p3"}, calls)
}

func TestPaginator_CycleTerminates(t *testing.T) {
	listing := pages{
		"p1": {Results: []resource.Resource{{"name": "a"}}, Next: "p2"},
		"p2": {Results: []resource.Resource{{"name": "b"}}, Next: "p1"},
	}

	before := testutil.ToFloat64(cyclesTotal)

	var calls []string
	it := New(listing.fetcher(&calls), DefaultConfig()).Iterate(context.Background(), "p1")

	var got []resource.Resource
	for it.Next() {
		got = append(got, it.Resource())
	}

	require.NoError(t, it.Err())
	assert.Equal(t, []string{"a", "b"}, names(got))
	assert.Equal(t, 2, it.Pages())
	assert.Equal(t, []string{"p1", "p2"}, calls)
	assert.Equal(t, before+1, testutil.ToFloat64(cyclesTotal))
}

func TestPaginator_SelfLoop(t *testing.T) {
	listing := pages{
		"p1": {Results: []resource.Resource{{"name": "a"}}, Next: "p1"},
	}

	got, err := New(listing.fetcher(nil), DefaultConfig()).All(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(got))
}

func TestPaginator_FailureIsFatal(t *testing.T) {
	listing := pages{
		"p1": {Results: []resource.Resource{{"name": "a"}}, Next: "p2"},
	}

	got, err := New(listing.fetcher(nil), DefaultConfig()).All(context.Background(), "p1")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPagination))

	var pageErr *PageError
	require.True(t, errors.As(err, &pageErr))
	assert.Equal(t, "p2", pageErr.URL)
}

func TestPaginator_LazyIteration(t *testing.T) {
	listing := pages{
		"p1": {Results: []resource.Resource{{"name": "a"}}, Next: "p2"},
		"p2": {Results: []resource.Resource{{"name": "b"}}},
	}

	var calls []string
	it := New(listing.fetcher(&calls), DefaultConfig()).Iterate(context.Background(), "p1")
	assert.Empty(t, calls)

	require.True(t, it.Next())
	assert.Equal(t, []string{"p1"}, calls)
	assert.Equal(t, "a", it.Resource().String("name"))
}

func TestPaginator_EmptyStartURL(t *testing.T) {
	_, err := New(pages{}.fetcher(nil), DefaultConfig()).All(context.Background(), "")
	assert.ErrorIs(t, err, ErrPagination)
}

func TestPaginator_CancelledContext(t *testing.T) {
	listing := pages{"p1": {Results: []resource.Resource{{"name": "a"}}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(listing.fetcher(nil), DefaultConfig()).All(ctx, "p1")
	assert.ErrorIs(t, err, ErrPagination)
	assert.ErrorIs(t, err, context.Canceled)
}

func newHTTPPageFetcher(t *testing.T, format Format) *HTTPPageFetcher {
	t.Helper()

	cfg := client.DefaultConfig("enricher-test/1.0")
	cfg.RateLimit = 0
	cfg.MaxRetries = 1
	cfg.InitialBackoff = time.Millisecond

	c, err := client.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	f, err := NewHTTPPageFetcher(c, format)
	require.NoError(t, err)
	return f
}

func TestHTTPPageFetcher_SWAPI(t *testing.T) {
	mock := mockapi.NewMockAPI()
	defer mock.Close()

	mock.SetJSON("/api/vehicles/", map[string]any{
		"count":   3,
		"next":    mock.URL("/api/vehicles/?page=2"),
		"results": []map[string]any{{"name": "Sand Crawler"}, {"name": "T-16 skyhopper"}},
	})
	mock.SetJSON("/api/vehicles/?page=2", map[string]any{
		"count":   3,
		"next":    nil,
		"results": []map[string]any{{"name": "X-34 landspeeder"}},
	})

	p := New(newHTTPPageFetcher(t, SWAPIFormat), DefaultConfig())
	got, err := p.All(context.Background(), mock.URL("/api/vehicles/"))

	require.NoError(t, err)
	assert.Equal(t, []string{"Sand Crawler", "T-16 skyhopper", "X-34 landspeeder"}, names(got))
}

func TestHTTPPageFetcher_ODataRelativeNext(t *testing.T) {
	mock := mockapi.NewMockAPI()
	defer mock.Close()

	mock.SetJSON("/People", map[string]any{
		"value":           []map[string]any{{"UserName": "russellwhyte"}},
		"@odata.nextLink": "People?$skiptoken=8",
	})
	mock.SetJSON("/People?$skiptoken=8", map[string]any{
		"value": []map[string]any{{"UserName": "scottketchum"}},
	})

	it := New(newHTTPPageFetcher(t, ODataFormat), DefaultConfig()).Iterate(context.Background(), mock.URL("/People"))

	var users []string
	for it.Next() {
		users = append(users, it.Resource().String("UserName"))
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"russellwhyte", "scottketchum"}, users)
}

func TestHTTPPageFetcher_Failures(t *testing.T) {
	mock := mockapi.NewMockAPI()
	defer mock.Close()

	mock.SetStatus("/api/gone/", http.StatusNotFound)
	mock.SetJSON("/api/noresults/", map[string]any{"next": nil})
	mock.SetJSON("/api/badnext/", map[string]any{"results": []any{}, "next": 2})
	mock.SetJSON("/api/badrecord/", map[string]any{"results": []any{"x"}})

	f := newHTTPPageFetcher(t, SWAPIFormat)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/gone/", http.StatusNotFound},
		{"/api/noresults/", 0},
		{"/api/badnext/", 0},
		{"/api/badrecord/", 0},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := f.FetchPage(context.Background(), mock.URL(tt.path))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPagination)

			var pageErr *PageError
			require.ErrorAs(t, err, &pageErr)
			assert.Equal(t, tt.wantStatus, pageErr.StatusCode)
		})
	}
}

func TestNewHTTPPageFetcher_Validation(t *testing.T) {
	_, err := NewHTTPPageFetcher(nil, SWAPIFormat)
	assert.EqualError(t, err, "getter is required")
}

func TestPageError_Error(t *testing.T) {
	err := &PageError{URL: "http://x/p2", StatusCode: 500, Err: errors.New("boom")}
	assert.Equal(t, "fetch page http://x/p2: status 500: boom", err.Error())

	err = &PageError{URL: "http://x/p2", Err: errors.New("boom")}
	assert.Equal(t, "fetch page http://x/p2: boom", err.Error())
}
