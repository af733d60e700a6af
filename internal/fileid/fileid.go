// Package fileid derives stable quote IDs from reply file paths, so a rewritten
// reply replaces its quote instead of adding another.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

// namespace scopes path derived IDs so they never collide with random quote IDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("rfqrank:reply-file"))

// QuoteID returns a name based (version 5) UUID for path. The path is cleaned
// first, so "a/./b" and "a/b" give the same ID.
func QuoteID(path string) string {
	return uuid.NewSHA1(namespace, []byte(filepath.Clean(path))).String()
}

// IsQuoteID reports whether id is a path derived quote ID.
func IsQuoteID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.Version() == 5
}
