package storage

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BlobStore abstracts the durable object store holding generated assets.
// Put writes data under name and returns a public URL for it. Names are the
// caller's responsibility and must never collide across runs.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// ObjectName builds a collision-resistant object name from a prefix and a
// content type, combining a nanosecond timestamp with a short random suffix
// so that two runs in the same instant still produce distinct assets.
func ObjectName(prefix, contentType string, now time.Time) string {
	ext := extensionFor(contentType)
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s-%d-%s%s", prefix, now.UnixNano(), suffix, ext)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	}

	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
