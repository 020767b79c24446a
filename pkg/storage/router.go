package storage

import (
	"context"
	"fmt"
	"io"
)

// Router dispatches storage calls to a backend by URI scheme
type Router struct {
	local *LocalStorage
	http  *HTTPStorage
	s3    Storage
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithS3 enables s3:// URIs
func WithS3(s Storage) RouterOption {
	return func(r *Router) {
		r.s3 = s
	}
}

// WithHTTP replaces the HTTP backend
func WithHTTP(h *HTTPStorage) RouterOption {
	return func(r *Router) {
		r.http = h
	}
}

// NewRouter creates a router for file:// and http(s):// URIs.
// s3:// is only served when WithS3 is given.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		local: NewLocalStorage(),
		http:  NewHTTPStorage(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Backend returns the storage backend for a URI
func (r *Router) Backend(uri string) (Storage, error) {
	scheme, _, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case "file":
		return r.local, nil
	case "http", "https":
		return r.http, nil
	case "s3":
		if r.s3 == nil {
			return nil, fmt.Errorf("S3 storage not initialized (AWS credentials may be missing)")
		}
		return r.s3, nil
	default:
		return nil, fmt.Errorf("unsupported URI scheme: %s", scheme)
	}
}

// Get implements Storage
func (r *Router) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	b, err := r.Backend(uri)
	if err != nil {
		return nil, err
	}
	return b.Get(ctx, uri)
}

// Put implements Storage
func (r *Router) Put(ctx context.Context, uri string, data io.Reader) error {
	b, err := r.Backend(uri)
	if err != nil {
		return err
	}
	return b.Put(ctx, uri, data)
}

// Delete implements Storage
func (r *Router) Delete(ctx context.Context, uri string) error {
	b, err := r.Backend(uri)
	if err != nil {
		return err
	}
	return b.Delete(ctx, uri)
}

// Exists implements Storage
func (r *Router) Exists(ctx context.Context, uri string) (bool, error) {
	b, err := r.Backend(uri)
	if err != nil {
		return false, err
	}
	return b.Exists(ctx, uri)
}
