package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Source is a resource read in chunks.
type Source interface {
	io.ReadCloser

	// Name identifies the source in logs and history.
	Name() string

	// Size is the total size in bytes, or -1 when unknown.
	Size() int64

	// Remote reports whether reads go over the network.
	Remote() bool
}

// IsRemote reports whether location names an HTTP(S) resource.
func IsRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// OpenSource opens a local file or an HTTP(S) URL.
func OpenSource(ctx context.Context, location string, timeout time.Duration) (Source, error) {
	if IsRemote(location) {
		return openHTTP(ctx, location, timeout)
	}
	return openFile(location)
}

type fileSource struct {
	*os.File
	size int64
}

func openFile(path string) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening source: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading source size: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("source %s is a directory", path)
	}
	return &fileSource{File: f, size: info.Size()}, nil
}

func (s *fileSource) Size() int64  { return s.size }
func (s *fileSource) Remote() bool { return false }

type httpSource struct {
	io.ReadCloser
	url  string
	size int64
}

func openHTTP(ctx context.Context, url string, timeout time.Duration) (*httpSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	// The timeout covers the response headers only; the body is read for as
	// long as the transfer takes.
	client := &http.Client{Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: timeout,
	}}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching source: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching source: unexpected status %s", resp.Status)
	}
	return &httpSource{ReadCloser: resp.Body, url: url, size: resp.ContentLength}, nil
}

func (s *httpSource) Name() string { return s.url }
func (s *httpSource) Size() int64  { return s.size }
func (s *httpSource) Remote() bool { return true }
