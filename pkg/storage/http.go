package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPStorage implements Storage for HTTP/HTTPS downloads.
// It is read-only; remote sources can be staged but never written.
type HTTPStorage struct {
	client *http.Client
	guard  func(uri string) error
}

// HTTPOption configures HTTPStorage
type HTTPOption func(*HTTPStorage)

// WithHTTPClient sets the client used for requests
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(hs *HTTPStorage) {
		hs.client = c
	}
}

// WithURLGuard rejects URIs before any request is made (e.g. SSRF checks)
func WithURLGuard(guard func(uri string) error) HTTPOption {
	return func(hs *HTTPStorage) {
		hs.guard = guard
	}
}

// NewHTTPStorage creates a new HTTP storage backend
func NewHTTPStorage(opts ...HTTPOption) *HTTPStorage {
	hs := &HTTPStorage{
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(hs)
	}
	return hs
}

func (hs *HTTPStorage) check(uri string) error {
	scheme, _, err := ParseURI(uri)
	if err != nil {
		return err
	}
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("HTTP storage only supports http:// and https:// URIs, got %s://", scheme)
	}
	if hs.guard != nil {
		if err := hs.guard(uri); err != nil {
			return err
		}
	}
	return nil
}

// Get downloads a file over HTTP/HTTPS
func (hs *HTTPStorage) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := hs.check(uri); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := hs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP request failed with status %d", ErrNotFound, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP request failed with status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// Put is not supported for HTTP storage (read-only)
func (hs *HTTPStorage) Put(ctx context.Context, uri string, data io.Reader) error {
	return fmt.Errorf("Put operation not supported for HTTP storage (read-only)")
}

// Delete is not supported for HTTP storage (read-only)
func (hs *HTTPStorage) Delete(ctx context.Context, uri string) error {
	return fmt.Errorf("HTTP storage does not support Delete operations (read-only)")
}

// Exists checks if a file exists by sending a HEAD request
func (hs *HTTPStorage) Exists(ctx context.Context, uri string) (bool, error) {
	if err := hs.check(uri); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := hs.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
