// Package postgres implements the suggestion store on PostgreSQL, for teams
// pointing several checkouts at one shared database. Selected by a
// postgres:// DSN in the configuration.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lintfix/lintfix/internal/types"
)

// Options holds PostgreSQL connection settings
type Options struct {
	// ConnectTimeout bounds the initial dial. Zero means the 30s default.
	ConnectTimeout time.Duration

	// MaxConns caps the pool size. Zero means 10.
	MaxConns int32
}

// Store implements the suggestion store on PostgreSQL
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database named by dsn and ensures the schema exists
func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	maxConns := opts.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = maxConns
	poolConfig.ConnConfig.ConnectTimeout = connectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Exec without arguments uses the simple protocol, so the whole
	// multi-statement schema runs in one round trip.
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Save inserts a suggestion and returns its assigned id. A zero CreatedAt
// is set to now before the insert.
func (s *Store) Save(ctx context.Context, suggestion *types.Suggestion) (int64, error) {
	if suggestion == nil {
		return 0, types.NewValidationError("suggestion", "is required")
	}
	if err := suggestion.Validate(); err != nil {
		return 0, err
	}
	if suggestion.CreatedAt.IsZero() {
		suggestion.CreatedAt = time.Now()
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO suggestions (file, question, response, model, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, suggestion.File, suggestion.Question, suggestion.Response, suggestion.Model, suggestion.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert suggestion: %w", err)
	}
	suggestion.ID = id

	return id, nil
}

// Fetch retrieves a suggestion by id
func (s *Store) Fetch(ctx context.Context, id int64) (*types.Suggestion, error) {
	var suggestion types.Suggestion

	err := s.pool.QueryRow(ctx, `
		SELECT id, file, question, response, model, created_at
		FROM suggestions
		WHERE id = $1
	`, id).Scan(
		&suggestion.ID, &suggestion.File, &suggestion.Question,
		&suggestion.Response, &suggestion.Model, &suggestion.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestion %d: %w", id, err)
	}

	return &suggestion, nil
}

// List returns stored suggestions newest first. A non-empty file restricts
// the result to suggestions for that file.
func (s *Store) List(ctx context.Context, file string) ([]*types.Suggestion, error) {
	query := `
		SELECT id, file, question, response, model, created_at
		FROM suggestions
	`
	args := []interface{}{}
	if file != "" {
		query += " WHERE file = $1"
		args = append(args, file)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var result []*types.Suggestion
	for rows.Next() {
		var suggestion types.Suggestion
		err := rows.Scan(
			&suggestion.ID, &suggestion.File, &suggestion.Question,
			&suggestion.Response, &suggestion.Model, &suggestion.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		result = append(result, &suggestion)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggestion rows: %w", err)
	}

	return result, nil
}

// Delete removes a suggestion by id. A missing id reports types.ErrNotFound.
func (s *Store) Delete(ctx context.Context, id int64) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM suggestions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete suggestion %d: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return types.ErrNotFound
	}

	return nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
