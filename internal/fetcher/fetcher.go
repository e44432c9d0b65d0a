// Package fetcher downloads source files over HTTP with per-host rate
// limiting and retries, caches them on disk, and streams CSV records.
package fetcher

import (
	"context"
	"io"
	"net/url"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadIfChanged fetches the URL only if the ETag has changed.
	// Returns (body, newETag, changed, error). If not changed, body is nil and changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)

	// PostForm submits an urlencoded form and returns the response body.
	PostForm(ctx context.Context, url string, form url.Values) (io.ReadCloser, error)
}
