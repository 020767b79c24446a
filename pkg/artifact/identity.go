// Package artifact derives content identities for media artifacts and
// validates uploads before they become session sources.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/storage"
)

// Identify returns the sha256 hex digest of everything read from r
func Identify(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// IdentifyFile hashes a local file
func IdentifyFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Identify(f)
}

// Resolve fills in a.Identity and a.Size from the artifact's content when the
// identity is not already known. Known identities are trusted as-is.
func Resolve(ctx context.Context, store storage.Storage, a schemas.Artifact) (schemas.Artifact, error) {
	if a.Identity != "" {
		return a, nil
	}
	if a.URI == "" {
		if a.Text == "" {
			return a, schemas.ErrNoSource
		}
		a.Identity = schemas.ShortHash(a.Text)
		return a, nil
	}

	rc, err := store.Get(ctx, a.URI)
	if err != nil {
		return a, fmt.Errorf("failed to read %s: %w", a.URI, err)
	}
	defer rc.Close()

	id, n, err := Identify(rc)
	if err != nil {
		return a, err
	}
	a.Identity = id
	a.Size = n
	return a, nil
}
