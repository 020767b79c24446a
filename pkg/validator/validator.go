// Package validator checks user-supplied artifact URIs before they reach storage.
package validator

import (
	"net"

	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/storage"
)

// Validator validates source and destination URIs
type Validator struct {
	resolve Resolver
}

// Option configures a Validator
type Option func(*Validator)

// WithResolver replaces DNS resolution (used by tests)
func WithResolver(r Resolver) Option {
	return func(v *Validator) {
		v.resolve = r
	}
}

// New creates a new Validator
func New(opts ...Option) *Validator {
	v := &Validator{resolve: net.LookupIP}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateSource checks a URI that will be read as a source artifact.
// HTTP sources are checked against private and link-local networks.
func (v *Validator) ValidateSource(uri string) error {
	scheme, err := v.checkScheme(uri)
	if err != nil {
		return err
	}

	if scheme == "http" || scheme == "https" {
		if err := validateHTTPURI(uri, v.resolve); err != nil {
			return schemas.InvalidInputf("source %s: security check failed: %v", uri, err)
		}
	}

	return nil
}

// ValidateDestination checks a URI that artifacts will be written to.
// HTTP destinations are rejected because HTTP storage is read-only.
func (v *Validator) ValidateDestination(uri string) error {
	scheme, err := v.checkScheme(uri)
	if err != nil {
		return err
	}

	if scheme == "http" || scheme == "https" {
		return schemas.InvalidInputf("destination %s: scheme '%s' is read-only", uri, scheme)
	}

	return nil
}

// Guard adapts ValidateSource for storage.WithURLGuard
func (v *Validator) Guard(uri string) error {
	return v.ValidateSource(uri)
}

func (v *Validator) checkScheme(uri string) (string, error) {
	scheme, _, err := storage.ParseURI(uri)
	if err != nil {
		return "", schemas.InvalidInputf("invalid URI: %v", err)
	}

	if !storage.IsAllowedScheme(scheme) {
		return "", schemas.InvalidInputf("scheme '%s' not allowed", scheme)
	}

	return scheme, nil
}
