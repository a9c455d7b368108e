// Package fetcher opens feed sources by URL scheme: local paths, http(s)
// endpoints, and FTP servers.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Open returns a reader for the given source. A source without a scheme (or
// with file://) is a local path; http, https, and ftp are fetched remotely.
// The caller must close the returned ReadCloser.
func Open(ctx context.Context, source string) (io.ReadCloser, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// no scheme (or a Windows drive letter): treat as a local path
		return openLocal(source)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return openLocal(u.Path)
	case "http", "https":
		return NewHTTPFetcher(HTTPOptions{}).Download(ctx, source)
	case "ftp":
		return NewFTPFetcher(FTPOptions{}).Download(ctx, source)
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

func openLocal(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	return f, nil
}
