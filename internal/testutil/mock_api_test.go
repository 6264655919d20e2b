package testutil

import (
	"io"
	"net/http"
	"testing"
)

func TestMockAPI_CountsAndDefault404(t *testing.T) {
	mock := NewMockAPI()
	defer mock.Close()

	mock.SetJSON("/api/people/1/", map[string]any{"name": "Luke Skywalker"})

	resp, err := http.Get(mock.URL("/api/people/1/"))
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(body) != `{"name":"Luke Skywalker"}` {
		t.Errorf("body = %s", body)
	}

	resp, err = http.Get(mock.URL("/api/people/2/"))
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", resp.StatusCode)
	}

	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("GetRequestCount() = %d, want 2", got)
	}
	if got := mock.GetPathCount("/api/people/1/"); got != 1 {
		t.Errorf("GetPathCount() = %d, want 1", got)
	}

	mock.Reset()
	if got := mock.GetRequestCount(); got != 0 {
		t.Errorf("GetRequestCount() after Reset = %d, want 0", got)
	}
}

func TestMockAPI_QueryHandlers(t *testing.T) {
	mock := NewMockAPI()
	defer mock.Close()

	mock.SetJSON("/api/vehicles/", map[string]any{"page": 1})
	mock.SetJSON("/api/vehicles/?page=2", map[string]any{"page": 2})

	for _, tc := range []struct {
		path string
		want string
	}{
		{"/api/vehicles/", `{"page":1}`},
		{"/api/vehicles/?page=2", `{"page":2}`},
		{"/api/vehicles/?page=3", `{"page":1}`},
	} {
		resp, err := http.Get(mock.URL(tc.path))
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != tc.want {
			t.Errorf("GET %s body = %s, want %s", tc.path, body, tc.want)
		}
	}
}

func TestNewConditionalHandler(t *testing.T) {
	mock := NewMockAPI()
	defer mock.Close()

	mock.SetHandler("/api/films/1/", NewConditionalHandler(`"v1"`, `{"title":"A New Hope"}`))

	resp, err := http.Get(mock.URL("/api/films/1/"))
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("ETag") != `"v1"` {
		t.Errorf("first response = %d etag %q", resp.StatusCode, resp.Header.Get("ETag"))
	}

	req, _ := http.NewRequest(http.MethodGet, mock.URL("/api/films/1/"), nil)
	req.Header.Set("If-None-Match", `"v1"`)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional GET error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("conditional status = %d, want 304", resp.StatusCode)
	}
	if got := mock.GetConditionalCount(); got != 1 {
		t.Errorf("GetConditionalCount() = %d, want 1", got)
	}
}
