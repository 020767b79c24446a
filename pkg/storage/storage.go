// Package storage moves artifact bytes between local files, HTTP and S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// AllowedSchemes is the whitelist of allowed URI schemes
var AllowedSchemes = []string{"https", "http", "s3", "file"}

// ErrNotFound is returned by Get when the object does not exist
var ErrNotFound = errors.New("object not found")

// Storage is the interface for all storage backends
type Storage interface {
	// Get opens the object at uri for reading
	Get(ctx context.Context, uri string) (io.ReadCloser, error)

	// Put replaces the object at uri with data
	Put(ctx context.Context, uri string, data io.Reader) error

	// Delete removes the object at uri
	Delete(ctx context.Context, uri string) error

	// Exists checks if an object exists at uri
	Exists(ctx context.Context, uri string) (bool, error)
}

// ParseURI parses a URI and returns scheme and path
func ParseURI(uri string) (scheme string, path string, err error) {
	if uri == "" {
		return "", "", fmt.Errorf("URI cannot be empty")
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid URI: %w", err)
	}

	if parsed.Scheme == "" {
		return "", "", fmt.Errorf("URI must have a scheme (e.g., file://, s3://)")
	}

	// For file:// URIs, use the full path
	if parsed.Scheme == "file" {
		return parsed.Scheme, parsed.Path, nil
	}

	// For other URIs (s3://, https://, etc.), combine host and path
	path = parsed.Host
	if parsed.Path != "" {
		path = path + parsed.Path
	}

	return parsed.Scheme, path, nil
}

// IsAllowedScheme checks if a URI scheme is in the whitelist
func IsAllowedScheme(scheme string) bool {
	for _, allowed := range AllowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

// FileURI returns a file:// URI for a local path
func FileURI(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return "file://" + filepath.ToSlash(p)
}

// JoinURI appends name to a root URI such as file:///data or s3://bucket/prefix
func JoinURI(root, name string) string {
	root = strings.TrimSuffix(root, "/")
	return root + "/" + strings.TrimPrefix(path.Clean("/"+name), "/")
}

// BaseName returns the last path element of a URI
func BaseName(uri string) string {
	_, p, err := ParseURI(uri)
	if err != nil || p == "" {
		return ""
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return base
}
