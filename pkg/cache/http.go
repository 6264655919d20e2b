package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when neither Cache-Control max-age nor
	// Expires is present. SWAPI and TripPin send neither.
	DefaultTTL = 5 * time.Minute
)

// ErrNotJSON is returned by ResponseToEntry for bodies that are not JSON.
// The enricher never decodes anything else, so such responses are not stored.
var ErrNotJSON = errors.New("response body is not JSON")

// IsCacheable reports whether a response may be stored: a 200 without
// Cache-Control no-store.
func IsCacheable(resp *http.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusOK {
		return false
	}
	return !hasDirective(resp.Header, "no-store")
}

// ResponseToEntry converts an HTTP response to a CacheEntry.
// It parses the freshness and last-modified headers and reads the response
// body. fallbackTTL applies when the response carries no freshness
// information; <= 0 means DefaultTTL.
func ResponseToEntry(resp *http.Response, fallbackTTL time.Duration) (*CacheEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	// Read body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()

	// Restore body for the JSON decoder of the caller
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if !json.Valid(body) {
		return nil, ErrNotJSON
	}

	entry := &CacheEntry{
		Data:       body,
		ETag:       resp.Header.Get("ETag"),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		CachedAt:   time.Now(),
	}

	// Freshness: max-age wins over Expires
	entry.Expires = parseExpires(resp.Header, fallbackTTL)

	// Parse Last-Modified header
	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry, nil
}

// EntryToResponse rebuilds an HTTP response from a cache entry. The response
// is marked with X-Cache: HIT so callers can tell it never left the process.
func EntryToResponse(entry *CacheEntry, req *http.Request) *http.Response {
	header := entry.Headers.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("X-Cache", "HIT")
	if !entry.CachedAt.IsZero() {
		header.Set("Age", strconv.Itoa(int(entry.Age().Seconds())))
	}

	// Entries written before StatusCode was stored default to 200
	status := entry.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Data)),
		ContentLength: int64(len(entry.Data)),
		Request:       req,
	}
}

// parseExpires derives the expiration time from Cache-Control max-age, then
// the Expires header. Returns now + fallbackTTL when neither is usable.
func parseExpires(headers http.Header, fallbackTTL time.Duration) time.Time {
	if fallbackTTL <= 0 {
		fallbackTTL = DefaultTTL
	}
	now := time.Now()

	if maxAge, ok := parseMaxAge(headers); ok {
		return now.Add(maxAge)
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		// No freshness information - use fallback TTL
		return now.Add(fallbackTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		// Failed to parse expires header - use fallback TTL
		return now.Add(fallbackTTL)
	}

	// Validate that TTL is not negative
	if expires.Before(now) {
		// Already expired - the entry is only kept for revalidation
		return now
	}

	return expires
}

// RevalidatedExpiry returns the new expiration carried by a 304 response.
// ok is false when the response has no usable freshness headers, in which
// case the cached expiry is left alone.
func RevalidatedExpiry(headers http.Header) (time.Time, bool) {
	if maxAge, ok := parseMaxAge(headers); ok {
		return time.Now().Add(maxAge), true
	}
	if expiresStr := headers.Get("Expires"); expiresStr != "" {
		if expires, err := http.ParseTime(expiresStr); err == nil {
			return expires, true
		}
	}
	return time.Time{}, false
}

// parseMaxAge returns the Cache-Control max-age value, if any.
func parseMaxAge(headers http.Header) (time.Duration, bool) {
	for _, directive := range cacheControl(headers) {
		value, found := strings.CutPrefix(directive, "max-age=")
		if !found {
			continue
		}
		secs, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

func hasDirective(headers http.Header, name string) bool {
	for _, directive := range cacheControl(headers) {
		if directive == name {
			return true
		}
	}
	return false
}

// cacheControl splits every Cache-Control header into lower-case directives.
func cacheControl(headers http.Header) []string {
	var directives []string
	for _, line := range headers.Values("Cache-Control") {
		for _, d := range strings.Split(line, ",") {
			if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
				directives = append(directives, d)
			}
		}
	}
	return directives
}

// ShouldMakeConditionalRequest determines if we should make a conditional request.
// Returns true if the entry has an ETag or Last-Modified validator.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	if entry == nil {
		return false
	}
	return entry.ETag != "" || !entry.LastModified.IsZero()
}

// AddConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since
// headers to the request.
func AddConditionalHeaders(req *http.Request, entry *CacheEntry) {
	if entry == nil || req == nil {
		return
	}

	// ETag is more accurate than Last-Modified
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.Format(http.TimeFormat))
	}
}
