package cmd

import (
	"strings"

	"github.com/orchonhq/orchon/pkg/persistence"
	"github.com/orchonhq/orchon/pkg/persistence/file"
)

// NewPersistence builds the store for a database URL. Only the file
// provider ships today; the URL scheme keeps the door open for SQL and
// document backends without touching callers.
func NewPersistence(databaseURL string) persistence.Persistence {
	return file.NewPersistence(parseFileRoot(databaseURL))
}

func parseFileRoot(databaseURL string) string {
	if root, ok := strings.CutPrefix(databaseURL, "file://"); ok {
		return root
	}

	return databaseURL
}
