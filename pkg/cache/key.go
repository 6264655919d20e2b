package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every Redis key written by this package.
const KeyPrefix = "enricher"

// CacheKey identifies a cached GET response.
type CacheKey struct {
	// Host is the API host (e.g. "swapi.dev")
	Host string

	// Path is the resource path (e.g. "/api/people/1/")
	Path string

	// QueryParams are the query parameters
	QueryParams url.Values

	// Scope separates responses fetched with different credentials.
	// Empty for public APIs.
	Scope string
}

// KeyFromRequest builds the cache key for an outgoing request. Requests that
// carry an Authorization or API-TOKEN header are scoped by a hash of it.
func KeyFromRequest(req *http.Request) CacheKey {
	key := CacheKey{
		Host:        req.URL.Host,
		Path:        req.URL.Path,
		QueryParams: req.URL.Query(),
	}
	for _, h := range []string{"Authorization", "API-TOKEN", "X-API-Key"} {
		if v := req.Header.Get(h); v != "" {
			sum := sha256.Sum256([]byte(h + ":" + v))
			key.Scope = hex.EncodeToString(sum[:8])
			break
		}
	}
	return key
}

// String generates a deterministic cache key string.
// Format: enricher:host/path:query1=val1:scope=abcd
//
// Example:
//
//	enricher:swapi.dev/api/people/?search=grievous -> enricher:swapi.dev/api/people:search=grievous
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	resource := strings.Trim(k.Host+"/"+strings.Trim(k.Path, "/"), "/")
	if resource != "" {
		parts = append(parts, resource)
	}

	// Query params (sorted for determinism)
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	if k.Scope != "" {
		parts = append(parts, "scope="+k.Scope)
	}

	return strings.Join(parts, ":")
}
