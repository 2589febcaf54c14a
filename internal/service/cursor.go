package service

import (
	"encoding/base64"
	"fmt"

	"github.com/ddr-tools/gitstatusd/internal/collection"
)

// DecodeCursor decodes a cursor into the identifier of the last collection of the previous page.
// Returns an empty string if the cursor is empty.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("failed to decode cursor: %w", err)
	}

	id := string(decoded)
	if !collection.ValidID(id) {
		return "", fmt.Errorf("invalid cursor: %q is not a collection id", id)
	}
	return id, nil
}

// EncodeCursor encodes a collection identifier into an opaque cursor
func EncodeCursor(collectionID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(collectionID))
}
