package cache

import (
	"net/http"
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "simple resource",
			key: CacheKey{
				Host: "swapi.dev",
				Path: "/api/people/1/",
			},
			want: "enricher:swapi.dev/api/people/1",
		},
		{
			name: "query params sorted",
			key: CacheKey{
				Host: "swapi.dev",
				Path: "/api/people/",
				QueryParams: url.Values{
					"search": []string{"grievous"},
					"page":   []string{"2"},
				},
			},
			want: "enricher:swapi.dev/api/people:page=2:search=grievous",
		},
		{
			name: "multi-valued param sorted",
			key: CacheKey{
				Host:        "example.com",
				Path:        "/items",
				QueryParams: url.Values{"id": []string{"b", "a"}},
			},
			want: "enricher:example.com/items:id=a,b",
		},
		{
			name: "scoped key",
			key: CacheKey{
				Host:  "apim.workato.com",
				Path:  "/employees",
				Scope: "abc123",
			},
			want: "enricher:apim.workato.com/employees:scope=abc123",
		},
		{
			name: "empty key",
			key:  CacheKey{},
			want: "enricher",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyFromRequest(t *testing.T) {
	public, _ := http.NewRequest("GET", "https://swapi.dev/api/people/?search=grievous", nil)
	key := KeyFromRequest(public)

	if key.Host != "swapi.dev" || key.Path != "/api/people/" {
		t.Errorf("KeyFromRequest() = %+v", key)
	}
	if key.QueryParams.Get("search") != "grievous" {
		t.Errorf("QueryParams = %v", key.QueryParams)
	}
	if key.Scope != "" {
		t.Errorf("Scope = %q, want empty for public request", key.Scope)
	}

	authA, _ := http.NewRequest("GET", "https://api.example.com/employees", nil)
	authA.Header.Set("API-TOKEN", "token-a")
	authB, _ := http.NewRequest("GET", "https://api.example.com/employees", nil)
	authB.Header.Set("API-TOKEN", "token-b")

	keyA, keyB := KeyFromRequest(authA), KeyFromRequest(authB)
	if keyA.Scope == "" {
		t.Fatal("expected scoped key for authenticated request")
	}
	if keyA.String() == keyB.String() {
		t.Error("different credentials must not share a cache key")
	}
}
