package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/Sternrassler/api-enricher/pkg/client"
	"github.com/Sternrassler/api-enricher/pkg/resource"
)

// ErrPagination matches every page failure via errors.Is.
var ErrPagination = errors.New("pagination failed")

// PageError describes a failed page fetch.
type PageError struct {
	URL        string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *PageError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch page %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch page %s: %v", e.URL, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Is makes every PageError match ErrPagination.
func (e *PageError) Is(target error) bool {
	return target == ErrPagination
}

// Page is one decoded page of a listing. Next is empty on the last page.
type Page struct {
	Results []resource.Resource
	Next    string
}

// PageFetcher fetches a single page by absolute URL.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (Page, error)
}

// PageFetcherFunc adapts a function to the PageFetcher interface.
type PageFetcherFunc func(ctx context.Context, pageURL string) (Page, error)

// FetchPage calls f(ctx, pageURL).
func (f PageFetcherFunc) FetchPage(ctx context.Context, pageURL string) (Page, error) {
	return f(ctx, pageURL)
}

// Format names the envelope keys of a paginated response.
type Format struct {
	ResultsKey string
	NextKey    string
}

var (
	// SWAPIFormat is {"results": [...], "next": "..."}.
	SWAPIFormat = Format{ResultsKey: "results", NextKey: "next"}

	// ODataFormat is {"value": [...], "@odata.nextLink": "..."}.
	ODataFormat = Format{ResultsKey: "value", NextKey: "@odata.nextLink"}
)

// JSONGetter is the part of the HTTP client the page fetcher needs.
type JSONGetter interface {
	GetJSON(ctx context.Context, rawURL string, v any) error
}

// HTTPPageFetcher fetches and decodes pages over HTTP.
type HTTPPageFetcher struct {
	getter JSONGetter
	format Format
}

// NewHTTPPageFetcher creates a page fetcher for the given envelope format.
func NewHTTPPageFetcher(getter JSONGetter, format Format) (*HTTPPageFetcher, error) {
	if getter == nil {
		return nil, errors.New("getter is required")
	}
	if format.ResultsKey == "" || format.NextKey == "" {
		return nil, fmt.Errorf("format needs results and next keys (got %+v)", format)
	}
	return &HTTPPageFetcher{getter: getter, format: format}, nil
}

// FetchPage fetches pageURL and decodes its envelope. Relative next links
// are resolved against pageURL.
func (f *HTTPPageFetcher) FetchPage(ctx context.Context, pageURL string) (Page, error) {
	var envelope map[string]any
	if err := f.getter.GetJSON(ctx, pageURL, &envelope); err != nil {
		return Page{}, &PageError{URL: pageURL, StatusCode: client.StatusCodeOf(err), Err: err}
	}

	raw, ok := envelope[f.format.ResultsKey].([]any)
	if !ok {
		return Page{}, &PageError{URL: pageURL, Err: fmt.Errorf("missing %q array", f.format.ResultsKey)}
	}

	page := Page{Results: make([]resource.Resource, 0, len(raw))}
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return Page{}, &PageError{URL: pageURL, Err: fmt.Errorf("%s[%d] is not an object", f.format.ResultsKey, i)}
		}
		page.Results = append(page.Results, resource.Resource(obj))
	}

	switch next := envelope[f.format.NextKey].(type) {
	case nil:
	case string:
		if next != "" {
			resolved, err := resolveNext(pageURL, next)
			if err != nil {
				return Page{}, &PageError{URL: pageURL, Err: err}
			}
			page.Next = resolved
		}
	default:
		return Page{}, &PageError{URL: pageURL, Err: fmt.Errorf("%q is %T, want string", f.format.NextKey, next)}
	}

	return page, nil
}

func resolveNext(pageURL, next string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parse next link: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
