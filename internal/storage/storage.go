// Package storage persists AI suggestions and run events. The default
// backend is a SQLite database under the repository's .lintfix directory;
// a postgres:// DSN in the configuration selects PostgreSQL instead.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lintfix/lintfix/internal/config"
	"github.com/lintfix/lintfix/internal/events"
	"github.com/lintfix/lintfix/internal/storage/postgres"
	"github.com/lintfix/lintfix/internal/storage/sqlite"
	"github.com/lintfix/lintfix/internal/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = types.ErrNotFound

// Store defines the interface for suggestion storage backends
type Store interface {
	// Suggestions - stored AI exchanges browsed with `lintfix suggestions`
	Save(ctx context.Context, suggestion *types.Suggestion) (int64, error)
	Fetch(ctx context.Context, id int64) (*types.Suggestion, error)
	List(ctx context.Context, file string) ([]*types.Suggestion, error)
	Delete(ctx context.Context, id int64) error

	// Run events - the activity feed behind `lintfix events`
	SaveEvent(ctx context.Context, event *events.Event) error
	ListEvents(ctx context.Context, runID string, limit int) ([]*events.Event, error)
	PruneEvents(ctx context.Context, retentionDays, maxEvents, batchSize int) (int, error)

	// Lifecycle
	Close() error
}

// Backends must satisfy the Store interface.
var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// delay between connection attempts, scaled by the attempt number
const openRetryDelay = 500 * time.Millisecond

// New opens the store selected by the configured database DSN. Plain paths
// open SQLite; postgres:// and postgresql:// DSNs open PostgreSQL. The open
// is retried DBRetries times before giving up.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	dsn := cfg.DatabasePath()

	attempts := cfg.DBRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * openRetryDelay):
			}
		}

		var store Store
		var err error
		if isPostgresDSN(dsn) {
			store, err = postgres.New(ctx, dsn, postgres.Options{ConnectTimeout: cfg.DBTimeout})
		} else {
			store, err = sqlite.New(dsn, sqlite.Options{BusyTimeout: cfg.DBTimeout})
		}
		if err == nil {
			return store, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to open suggestion store after %d attempt(s): %w", attempts, lastErr)
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
