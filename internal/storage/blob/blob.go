// Package blob holds the object stores used for uploaded audio.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Store is a key/value object store. Get fails with common.ErrBlobNotFound
// when the key is absent.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// UploadKey builds a unique key for an uploaded file, keeping a sanitised
// copy of the client filename for readability.
func UploadKey(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." || name == ".." || name == "/" {
		name = "audio"
	}
	return fmt.Sprintf("uploads/%s/%s", uuid.NewString(), name)
}
