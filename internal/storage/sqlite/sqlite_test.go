package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lintfix/lintfix/internal/events"
	"github.com/lintfix/lintfix/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "suggestions.db"), Options{})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testSuggestion(file string) *types.Suggestion {
	return &types.Suggestion{
		File:     file,
		Question: "Address the following issues: E501 line too long",
		Response: `{"response": "shortened the offending lines"}`,
		Model:    "claude-sonnet-4-5",
	}
}

func TestSaveAndFetchSuggestion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	suggestion := testSuggestion("app/models.py")
	id, err := store.Save(ctx, suggestion)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id < 1 {
		t.Errorf("Expected positive id, got %d", id)
	}
	if suggestion.ID != id {
		t.Errorf("Expected suggestion.ID set to %d, got %d", id, suggestion.ID)
	}
	if suggestion.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set on save")
	}

	got, err := store.Fetch(ctx, id)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.ID != id {
		t.Errorf("Expected id %d, got %d", id, got.ID)
	}
	if got.File != "app/models.py" {
		t.Errorf("Expected file app/models.py, got %s", got.File)
	}
	if got.Question != suggestion.Question {
		t.Errorf("Question did not round-trip: %s", got.Question)
	}
	if got.Response != suggestion.Response {
		t.Errorf("Response did not round-trip: %s", got.Response)
	}
	if got.Model != "claude-sonnet-4-5" {
		t.Errorf("Expected model claude-sonnet-4-5, got %s", got.Model)
	}
	if got.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to round-trip")
	}
}

func TestSaveValidatesSuggestion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	missingFile := testSuggestion("")
	if _, err := store.Save(ctx, missingFile); err == nil {
		t.Error("Expected error for missing file")
	}

	badResponse := testSuggestion("app.py")
	badResponse.Response = "not json"
	_, err := store.Save(ctx, badResponse)
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError for non-JSON response, got %v", err)
	}
	if verr.Field != "response" {
		t.Errorf("Expected field response, got %s", verr.Field)
	}

	if _, err := store.Save(ctx, nil); err == nil {
		t.Error("Expected error for nil suggestion")
	}
}

func TestFetchMissingSuggestion(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Fetch(context.Background(), 42)
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListFiltersByFileNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, file := range []string{"a.py", "b.py", "a.py"} {
		suggestion := testSuggestion(file)
		suggestion.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if _, err := store.Save(ctx, suggestion); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 suggestions, got %d", len(all))
	}
	if !all[0].CreatedAt.After(all[1].CreatedAt) || !all[1].CreatedAt.After(all[2].CreatedAt) {
		t.Error("Expected newest-first ordering")
	}

	filtered, err := store.List(ctx, "a.py")
	if err != nil {
		t.Fatalf("List with file filter failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("Expected 2 suggestions for a.py, got %d", len(filtered))
	}
	for _, s := range filtered {
		if s.File != "a.py" {
			t.Errorf("Expected only a.py suggestions, got %s", s.File)
		}
	}
}

func TestDeleteSuggestion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, testSuggestion("app.py"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Fetch(ctx, id); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, id); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for second delete, got %v", err)
	}
}

func TestSaveAndListEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		event := events.New(events.EventTypeTaskDispatched, "run-1", events.SeverityInfo, "dispatched", nil)
		event.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.SaveEvent(ctx, event); err != nil {
			t.Fatalf("SaveEvent failed: %v", err)
		}
	}
	other := events.New(events.EventTypeRunStarted, "run-2", events.SeverityInfo, "started", nil)
	other.CreatedAt = base.Add(time.Hour)
	if err := store.SaveEvent(ctx, other); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}

	// One run, chronological.
	run1, err := store.ListEvents(ctx, "run-1", 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(run1) != 3 {
		t.Fatalf("Expected 3 events for run-1, got %d", len(run1))
	}
	if run1[0].CreatedAt.After(run1[1].CreatedAt) {
		t.Error("Expected chronological ordering for a single run")
	}

	// All runs, most recent first, limited.
	recent, err := store.ListEvents(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(recent))
	}
	if recent[0].RunID != "run-2" {
		t.Errorf("Expected the run-2 event first, got run %s", recent[0].RunID)
	}
}

func TestSaveEventRoundTripsData(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event, err := events.NewStateChangeEvent("run-1", "task-1", "app.py", events.StateChangeData{
		From:    "fixing",
		To:      "validating",
		Attempt: 2,
	})
	if err != nil {
		t.Fatalf("NewStateChangeEvent failed: %v", err)
	}
	if err := store.SaveEvent(ctx, event); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}

	got, err := store.ListEvents(ctx, "run-1", 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(got))
	}
	if got[0].TaskID != "task-1" || got[0].File != "app.py" {
		t.Errorf("Task scoping did not round-trip: %+v", got[0])
	}

	data, err := got[0].GetStateChangeData()
	if err != nil {
		t.Fatalf("GetStateChangeData failed: %v", err)
	}
	if data.From != "fixing" || data.To != "validating" || data.Attempt != 2 {
		t.Errorf("Data did not round-trip: %+v", data)
	}
}

func TestPruneEventsByAge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := events.New(events.EventTypeRunCompleted, "run-old", events.SeverityInfo, "done", nil)
	old.CreatedAt = time.Now().AddDate(0, 0, -40)
	fresh := events.New(events.EventTypeRunCompleted, "run-new", events.SeverityInfo, "done", nil)
	for _, e := range []*events.Event{old, fresh} {
		if err := store.SaveEvent(ctx, e); err != nil {
			t.Fatalf("SaveEvent failed: %v", err)
		}
	}

	deleted, err := store.PruneEvents(ctx, 30, 100000, 100)
	if err != nil {
		t.Fatalf("PruneEvents failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted event, got %d", deleted)
	}

	remaining, err := store.ListEvents(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].RunID != "run-new" {
		t.Errorf("Expected only the fresh event to survive, got %+v", remaining)
	}
}

func TestPruneEventsEnforcesCapButSparesErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	failure := events.New(events.EventTypeError, "run-1", events.SeverityError, "fixer crashed", nil)
	failure.CreatedAt = base
	if err := store.SaveEvent(ctx, failure); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		event := events.New(events.EventTypeTaskCompleted, "run-1", events.SeverityInfo, "done", nil)
		event.CreatedAt = base.Add(time.Duration(i+1) * time.Minute)
		if err := store.SaveEvent(ctx, event); err != nil {
			t.Fatalf("SaveEvent failed: %v", err)
		}
	}

	deleted, err := store.PruneEvents(ctx, 365, 3, 100)
	if err != nil {
		t.Fatalf("PruneEvents failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Expected 3 deleted events, got %d", deleted)
	}

	remaining, err := store.ListEvents(ctx, "run-1", 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(remaining) != 3 {
		t.Fatalf("Expected 3 surviving events, got %d", len(remaining))
	}
	if remaining[0].Severity != events.SeverityError {
		t.Errorf("Expected the error event to survive the cap, got %+v", remaining[0])
	}
}

func TestPruneEventsStopsWhenOnlyErrorsRemain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		event := events.New(events.EventTypeError, "run-1", events.SeverityError, "boom", nil)
		if err := store.SaveEvent(ctx, event); err != nil {
			t.Fatalf("SaveEvent failed: %v", err)
		}
	}

	deleted, err := store.PruneEvents(ctx, 365, 1, 100)
	if err != nil {
		t.Fatalf("PruneEvents failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected no deletions when only error events remain, got %d", deleted)
	}
}

func TestPruneEventsValidatesArguments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.PruneEvents(ctx, 0, 1000, 100); err == nil {
		t.Error("Expected error for zero retention days")
	}
	if _, err := store.PruneEvents(ctx, 30, 0, 100); err == nil {
		t.Error("Expected error for zero max events")
	}
	if _, err := store.PruneEvents(ctx, 30, 1000, 0); err == nil {
		t.Error("Expected error for zero batch size")
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lintfix", "suggestions.db")

	store, err := New(path, Options{})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected database file to exist: %v", err)
	}
}

func TestInMemoryStore(t *testing.T) {
	store, err := New(":memory:", Options{})
	if err != nil {
		t.Fatalf("Failed to open in-memory store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	id, err := store.Save(ctx, testSuggestion("app.py"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := store.Fetch(ctx, id); err != nil {
		t.Errorf("Fetch failed: %v", err)
	}
}
