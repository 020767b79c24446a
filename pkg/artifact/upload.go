package artifact

import (
	"strings"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// UploadPolicy limits what can be accepted as a source upload
type UploadPolicy struct {
	// AcceptedTypes are MIME types or prefixes ending in "/" (e.g. "video/")
	AcceptedTypes []string
	MaxSizeMB     int
}

// DefaultUploadPolicy accepts any video up to 500MB
func DefaultUploadPolicy() UploadPolicy {
	return UploadPolicy{AcceptedTypes: []string{"video/"}, MaxSizeMB: 500}
}

// Check validates a declared MIME type and size in bytes
func (p UploadPolicy) Check(mimeType string, size int64) error {
	if size <= 0 {
		return schemas.InvalidInputf("empty upload")
	}
	if p.MaxSizeMB > 0 && size > int64(p.MaxSizeMB)*1024*1024 {
		return schemas.InvalidInputf("file too large: %d bytes exceeds %dMB", size, p.MaxSizeMB)
	}
	if !p.accepts(mimeType) {
		return schemas.InvalidInputf("unsupported file type %q", mimeType)
	}
	return nil
}

func (p UploadPolicy) accepts(mimeType string) bool {
	if len(p.AcceptedTypes) == 0 {
		return true
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	for _, accepted := range p.AcceptedTypes {
		accepted = strings.ToLower(accepted)
		if strings.HasSuffix(accepted, "/") {
			if strings.HasPrefix(mimeType, accepted) {
				return true
			}
			continue
		}
		if mimeType == accepted {
			return true
		}
	}
	return false
}
