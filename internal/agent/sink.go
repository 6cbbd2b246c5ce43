package agent

import (
	"context"
	"fmt"
	"os"

	"github.com/lintfix/lintfix/internal/events"
	"github.com/lintfix/lintfix/internal/storage"
)

// StoreSink adapts the suggestion store to the event-recording seam shared
// by the agent and the file processor. Storage failures degrade to a
// warning so event persistence never blocks remediation.
type StoreSink struct {
	store storage.Store
}

// NewStoreSink wraps store. A nil store yields a sink that drops every
// event, which keeps callers free of nil checks.
func NewStoreSink(store storage.Store) *StoreSink {
	return &StoreSink{store: store}
}

// Record persists the event. A dead context is swapped for a background one
// so the events recorded while a cancellation unwinds still land.
func (s *StoreSink) Record(ctx context.Context, event *events.Event) {
	if s == nil || s.store == nil || event == nil {
		return
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := s.store.SaveEvent(ctx, event); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record %s event: %v\n", event.Type, err)
	}
}
