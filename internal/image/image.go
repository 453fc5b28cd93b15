// Package image stores event images behind an opaque reference. The
// reference is what the events table records; callers never see paths or
// object keys.
package image

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no image exists for the reference.
var ErrNotFound = errors.New("image not found")

// Store persists image bytes.
type Store interface {
	Put(ctx context.Context, data []byte, ext string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, string, error)
	Delete(ctx context.Context, ref string) error
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// ExtensionFor returns the file extension for an accepted image content
// type. Parameters such as charset are ignored.
func ExtensionFor(contentType string) (string, bool) {
	mediaType, _, _ := strings.Cut(contentType, ";")
	ext, ok := extensions[strings.ToLower(strings.TrimSpace(mediaType))]
	return ext, ok
}

// ContentTypeFor returns the content type implied by a reference's
// extension.
func ContentTypeFor(ref string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(ref))]; ok {
		return ct
	}
	return "application/octet-stream"
}

func newRef(ext string) string {
	return uuid.NewString() + ext
}

// validRef rejects references that could escape the storage root.
func validRef(ref string) bool {
	return ref != "" && ref == filepath.Base(ref) && !strings.HasPrefix(ref, ".")
}
