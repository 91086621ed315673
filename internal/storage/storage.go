package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Archive keeps a raw copy of every validated upload.
type Archive interface {
	Put(ctx context.Context, key string, content []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ArchiveKey lays objects out as <chat_id>/<yyyy>/<mm>/<dd>/<request_id>-<filename>.
func ArchiveKey(chatID, requestID, filename string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s-%s",
		keySegment(chatID), at.Year(), int(at.Month()), at.Day(), requestID, keySegment(path.Base(filename)))
}

func keySegment(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
