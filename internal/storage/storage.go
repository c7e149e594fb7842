// Package storage persists synthesized audio and hands back playback URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a key has no object.
var ErrNotFound = errors.New("object not found")

// ObjectStore saves audio bytes under a key and returns a URL the reader
// surface can play back. Keys look like "<bookID>/<sceneID>.<format>".
type ObjectStore interface {
	// Put stores data under key and returns its permanent URL.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get retrieves the object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Name identifies the backend ("fs", "nats").
	Name() string
}

// AudioKey builds the canonical object key for a scene's soundscape.
func AudioKey(bookID, sceneID, format string) string {
	if format == "" {
		format = "mp3"
	}
	return bookID + "/" + sceneID + "." + format
}

// validateKey rejects empty keys and path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid object key %q", key)
		}
	}
	return nil
}
