// Package fetcher downloads feed and boundary data from HTTP or the local
// filesystem, streams XML documents element by element and unpacks zip
// archives.
package fetcher

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote documents.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadIfChanged fetches the URL only if its ETag differs from etag.
	// Returns (body, newETag, changed, error); body is nil when unchanged.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}

// IsRemote reports whether source is an http(s) URL rather than a file path.
func IsRemote(source string) bool {
	s := strings.ToLower(source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Open returns a reader for source: remote sources go through f, anything
// else is opened as a local file. f may be nil for local-only use.
func Open(ctx context.Context, f Fetcher, source string) (io.ReadCloser, error) {
	if IsRemote(source) {
		if f == nil {
			return nil, eris.Errorf("fetcher: no http fetcher for %s", source)
		}
		return f.Download(ctx, source)
	}
	file, err := os.Open(source)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", source)
	}
	return file, nil
}
