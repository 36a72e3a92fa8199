// Package fetcher defines the page retrieval contract shared by the static
// and headless implementations.
package fetcher

import "context"

// Fetcher retrieves a page body as HTML. Implementations return an error for
// any non-successful outcome, including non-2xx status codes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
