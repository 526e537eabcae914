package store

import (
	"context"
	"strings"
)

// NewStore picks postgres when databaseURL is set, then sqlite when sqlitePath
// is set, otherwise an in-memory store.
func NewStore(ctx context.Context, databaseURL, sqlitePath string) (Store, error) {
	if url := strings.TrimSpace(databaseURL); url != "" {
		return NewPostgresStore(ctx, url)
	}
	if path := strings.TrimSpace(sqlitePath); path != "" {
		return NewSQLiteStore(ctx, path)
	}
	return NewInMemoryStore(), nil
}
