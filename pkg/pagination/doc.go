// Package pagination walks cursor-paginated collections (SWAPI "next",
// OData "@odata.nextLink") and emits their records in page order.
//
// Pages are fetched strictly one after another: each page names its
// successor, so there is nothing to parallelize. Any page failure is fatal
// for the whole listing and is reported as a *PageError that matches
// ErrPagination.
//
// Example usage:
//
//	fetcher, _ := pagination.NewHTTPPageFetcher(httpClient, pagination.SWAPIFormat)
//	p := pagination.New(fetcher, pagination.DefaultConfig())
//	it := p.Iterate(ctx, "https://swapi.dev/api/vehicles/")
//	for it.Next() {
//		record := it.Resource()
//		...
//	}
//	if err := it.Err(); err != nil {
//		return err
//	}
//
// A next link that points back at an already visited page terminates the
// iteration after every page has been emitted once.
package pagination
