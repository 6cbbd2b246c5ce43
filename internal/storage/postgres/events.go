package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lintfix/lintfix/internal/events"
)

// SaveEvent stores a run event
func (s *Store) SaveEvent(ctx context.Context, event *events.Event) error {
	data := "{}"
	if len(event.Data) > 0 {
		raw, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		data = string(raw)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_events (id, type, run_id, task_id, file, severity, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		event.ID, event.Type, event.RunID, event.TaskID, event.File,
		event.Severity, event.Message, data, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store run event (type=%s, run=%s): %w", event.Type, event.RunID, err)
	}

	return nil
}

// ListEvents returns events for one run in chronological order, or, when
// runID is empty, the most recent events across all runs newest first.
func (s *Store) ListEvents(ctx context.Context, runID string, limit int) ([]*events.Event, error) {
	query := `
		SELECT id, type, run_id, task_id, file, severity, message, data, created_at
		FROM run_events
	`
	args := []interface{}{}
	if runID != "" {
		args = append(args, runID)
		query += fmt.Sprintf(" WHERE run_id = $%d ORDER BY created_at ASC", len(args))
	} else {
		query += " ORDER BY created_at DESC"
	}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents is a helper function to scan rows into Event structs
func scanEvents(rows pgx.Rows) ([]*events.Event, error) {
	var result []*events.Event

	for rows.Next() {
		var event events.Event
		var dataJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.Type,
			&event.RunID,
			&event.TaskID,
			&event.File,
			&event.Severity,
			&event.Message,
			&dataJSON,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}

		if len(dataJSON) > 0 && string(dataJSON) != "{}" {
			event.Data = make(map[string]interface{})
			if err := json.Unmarshal(dataJSON, &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}

		result = append(result, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run event rows: %w", err)
	}

	return result, nil
}

// PruneEvents deletes events older than retentionDays, then trims the table
// down to maxEvents. Error events are exempt from the count trim; only age
// removes them. Deletions run in batches of batchSize per statement.
// Returns the number of events deleted.
func (s *Store) PruneEvents(ctx context.Context, retentionDays, maxEvents, batchSize int) (int, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("retention days must be at least 1")
	}
	if maxEvents < 1 {
		return 0, fmt.Errorf("max events must be at least 1")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	total := 0

	// Step 1: age. Everything past the retention window goes, errors included.
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		ct, err := s.pool.Exec(ctx, `
			DELETE FROM run_events
			WHERE id IN (
				SELECT id FROM run_events
				WHERE created_at < $1
				ORDER BY created_at ASC
				LIMIT $2
			)
		`, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to delete events past retention: %w", err)
		}

		total += int(ct.RowsAffected())
		if ct.RowsAffected() < int64(batchSize) {
			break
		}
	}

	// Step 2: count cap. Oldest non-error events go until the table fits.
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM run_events`).Scan(&count); err != nil {
		return total, fmt.Errorf("failed to count run events: %w", err)
	}

	excess := count - maxEvents
	for excess > 0 {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		limit := batchSize
		if excess < batchSize {
			limit = excess
		}

		ct, err := s.pool.Exec(ctx, `
			DELETE FROM run_events
			WHERE id IN (
				SELECT id FROM run_events
				WHERE severity != 'error'
				ORDER BY created_at ASC
				LIMIT $1
			)
		`, limit)
		if err != nil {
			return total, fmt.Errorf("failed to trim events to cap: %w", err)
		}

		affected := int(ct.RowsAffected())
		total += affected
		excess -= affected

		// Nothing but error events left to trim.
		if affected < limit {
			break
		}
	}

	return total, nil
}
