package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_events (id, type, run_id, task_id, file, severity, message, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		query += " WHERE run_id = ? ORDER BY created_at ASC"
		args = append(args, runID)
	} else {
		query += " ORDER BY created_at DESC"
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents is a helper function to scan rows into Event structs
func scanEvents(rows *sql.Rows) ([]*events.Event, error) {
	var result []*events.Event

	for rows.Next() {
		var event events.Event
		var dataJSON string

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

		if dataJSON != "" && dataJSON != "{}" {
			event.Data = make(map[string]interface{})
			if err := json.Unmarshal([]byte(dataJSON), &event.Data); err != nil {
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
	deleted, err := s.deleteEventBatches(ctx, `
		DELETE FROM run_events
		WHERE id IN (
			SELECT id FROM run_events
			WHERE created_at < ?
			ORDER BY created_at ASC
			LIMIT ?
		)
	`, batchSize, cutoff)
	if err != nil {
		return total, fmt.Errorf("failed to delete events past retention: %w", err)
	}
	total += deleted

	// Step 2: count cap. Oldest non-error events go until the table fits.
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_events`).Scan(&count); err != nil {
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

		res, err := s.db.ExecContext(ctx, `
			DELETE FROM run_events
			WHERE id IN (
				SELECT id FROM run_events
				WHERE severity != 'error'
				ORDER BY created_at ASC
				LIMIT ?
			)
		`, limit)
		if err != nil {
			return total, fmt.Errorf("failed to trim events to cap: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to read rows affected: %w", err)
		}
		total += int(affected)
		excess -= int(affected)

		// Nothing but error events left to trim.
		if affected < int64(limit) {
			break
		}
	}

	return total, nil
}

// deleteEventBatches runs a batched delete until a batch comes back short.
// The query's final placeholder is the batch limit.
func (s *Store) deleteEventBatches(ctx context.Context, query string, batchSize int, args ...interface{}) (int, error) {
	argv := append(args, batchSize)
	total := 0

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		res, err := s.db.ExecContext(ctx, query, argv...)
		if err != nil {
			return total, err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(affected)

		if affected < int64(batchSize) {
			return total, nil
		}
	}
}
