// Package sqlite implements the suggestion store on an embedded SQLite
// database. The driver is pure Go (ncruces/go-sqlite3 over wazero), so no
// cgo toolchain is needed to build or test against it.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/lintfix/lintfix/internal/types"
)

// Options holds SQLite connection settings
type Options struct {
	// BusyTimeout is how long a statement waits on a locked database
	// before failing. Zero means the 5s default.
	BusyTimeout time.Duration
}

// Store implements the suggestion store on SQLite
type Store struct {
	db *sql.DB
}

// New opens the database at path, creating the file and its directory if
// needed. The special path ":memory:" opens an in-memory database that
// lives until Close.
func New(path string, opts Options) (*Store, error) {
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	dsn := "file:" + filepath.ToSlash(path)
	if path == ":memory:" {
		dsn = "file::memory:"
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn += fmt.Sprintf("?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(on)", busy.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection. SQLite serializes writers anyway, and a single
	// connection keeps :memory: databases alive across statements.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
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

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO suggestions (file, question, response, model, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, suggestion.File, suggestion.Question, suggestion.Response, suggestion.Model, suggestion.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert suggestion: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted suggestion id: %w", err)
	}
	suggestion.ID = id

	return id, nil
}

// Fetch retrieves a suggestion by id
func (s *Store) Fetch(ctx context.Context, id int64) (*types.Suggestion, error) {
	var suggestion types.Suggestion

	err := s.db.QueryRowContext(ctx, `
		SELECT id, file, question, response, model, created_at
		FROM suggestions
		WHERE id = ?
	`, id).Scan(
		&suggestion.ID, &suggestion.File, &suggestion.Question,
		&suggestion.Response, &suggestion.Model, &suggestion.CreatedAt,
	)
	if err == sql.ErrNoRows {
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
		query += " WHERE file = ?"
		args = append(args, file)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM suggestions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete suggestion %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return types.ErrNotFound
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
