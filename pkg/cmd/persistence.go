package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/storycut/storycut/pkg/persistence"
	"github.com/storycut/storycut/pkg/persistence/file"
	"github.com/storycut/storycut/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL:
// postgres URLs get the PostgreSQL backend, everything else is treated
// as a directory path for the file backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgres persistence: %w", err))
		}

		return p
	}

	return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
}
