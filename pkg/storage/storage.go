// Package storage holds the image store contract shared by the local and GCS backends.
package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// ImageStore persists uploaded image bytes and reads them back by locator.
type ImageStore interface {
	Save(ctx context.Context, data []byte, ext string) (string, error)
	Read(ctx context.Context, locator string) ([]byte, error)
}

// Error wraps a failed store operation.
type Error struct {
	Op      string
	Locator string
	Err     error
}

func (e *Error) Error() string {
	if e.Locator != "" {
		return fmt.Sprintf("storage %s %s: %v", e.Op, e.Locator, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

const digestPrefixLen = 8

// ObjectName builds bulk/<yyyy>/<mm>/<digest>-<uuid>.<ext> for data.
// The digest groups duplicate photos; the uuid keeps names unique.
func ObjectName(now time.Time, data []byte, ext string) string {
	sum := blake2b.Sum256(data)
	digest := hex.EncodeToString(sum[:])[:digestPrefixLen*2]
	return fmt.Sprintf("bulk/%04d/%02d/%s-%s.%s",
		now.UTC().Year(), int(now.UTC().Month()), digest, uuid.NewString(), NormalizeExt(ext))
}

// NormalizeExt lowercases ext, strips the leading dot and folds aliases.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	switch ext {
	case "":
		return "bin"
	case "jpeg":
		return "jpg"
	default:
		return ext
	}
}
