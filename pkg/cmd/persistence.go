// Package cmd provides common initialization for the service binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/runweave/runweave/pkg/persistence"
	"github.com/runweave/runweave/pkg/persistence/file"
	"github.com/runweave/runweave/pkg/persistence/postgresql"
	"github.com/runweave/runweave/pkg/persistence/redis"
)

// NewPersistence builds the storage backend from the database URL scheme.
// postgres URLs get the SQL backend; anything else is treated as a file
// root for local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		root := strings.TrimPrefix(databaseURL, "file://")

		return file.NewPersistence(root), nil
	}
}

// NewConfirmationStore builds an external confirmation request store from
// its URL. An empty URL keeps confirmations in the primary backend, which
// is what single-process deployments want.
func NewConfirmationStore(ctx context.Context, logger *slog.Logger, storeURL string) (persistence.ConfirmationRepository, error) {
	if storeURL == "" {
		return nil, nil
	}

	switch parseProvider(storeURL) {
	case "redis":
		addr := strings.TrimPrefix(storeURL, "redis://")

		return redis.NewConfirmationRepository(ctx, logger, addr, 0)
	default:
		return nil, fmt.Errorf("unsupported confirmation store: %s", storeURL)
	}
}

func parseProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)
	if len(parts) < 2 {
		return "file"
	}

	return parts[0]
}
