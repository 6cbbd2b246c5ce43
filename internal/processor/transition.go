package processor

import (
	"fmt"

	"github.com/lintfix/lintfix/internal/types"
)

// event is an input that moves a FileTask between lifecycle states.
// Step methods produce events; transition validates them against the
// edge table.
type event string

const (
	eventNone        event = ""
	eventDispatched  event = "dispatched"   // formatter pre-pass done, begin linting
	eventIssuesFound event = "issues_found" // linter produced findings
	eventNoIssues    event = "no_issues"    // nothing to fix
	eventGrouped     event = "grouped"      // findings clustered into fix units
	eventNoGroups    event = "no_groups"    // grouping produced nothing actionable
	eventDryRun      event = "dry_run"      // stop after grouping, no mutation
	eventFixStarted  event = "fix_started"  // checkpoint in place, attempt begins
	eventFixApplied  event = "fix_applied"  // proposal written to the tree
	eventCommitted   event = "committed"    // validated fix published
	eventRetry       event = "retry"        // reverted, attempt budget remains
	eventExhausted   event = "exhausted"    // reverted, attempt budget spent
	eventFatal       event = "fatal"        // non-transient failure, no retry
	eventFailed      event = "failed"       // fatal unwind completed
	eventCanceled    event = "canceled"     // run canceled at a boundary
)

// transitions is the complete edge table. Committed, Failed, and Skipped
// have no outgoing edges; Reverted has exactly one, used when a
// non-transient failure unwinds through it.
var transitions = map[types.State]map[event]types.State{
	types.StatePending: {
		eventDispatched: types.StateLinting,
		eventCanceled:   types.StateSkipped,
	},
	types.StateLinting: {
		eventIssuesFound: types.StateGrouping,
		eventNoIssues:    types.StateSkipped,
		eventFatal:       types.StateFailed,
		eventCanceled:    types.StateSkipped,
	},
	types.StateGrouping: {
		eventGrouped:  types.StateCheckpointed,
		eventNoGroups: types.StateSkipped,
		eventDryRun:   types.StateSkipped,
		eventFatal:    types.StateFailed,
		eventCanceled: types.StateSkipped,
	},
	types.StateCheckpointed: {
		eventFixStarted: types.StateFixing,
		eventFatal:      types.StateReverted,
		eventCanceled:   types.StateReverted,
	},
	types.StateFixing: {
		eventFixApplied: types.StateValidating,
		eventRetry:      types.StateCheckpointed,
		eventExhausted:  types.StateFailed,
		eventFatal:      types.StateReverted,
		eventCanceled:   types.StateReverted,
	},
	types.StateValidating: {
		eventCommitted: types.StateCommitted,
		eventRetry:     types.StateCheckpointed,
		eventExhausted: types.StateFailed,
		eventFatal:     types.StateReverted,
		eventCanceled:  types.StateReverted,
	},
	types.StateReverted: {
		eventFailed: types.StateFailed,
	},
}

// transition validates one edge of the task lifecycle. It is pure: all
// side effects live in the per-state step methods, so the full machine
// can be checked without touching a repository.
func transition(from types.State, ev event) (types.State, error) {
	edges, ok := transitions[from]
	if !ok {
		return "", fmt.Errorf("no transitions from state %s", from)
	}
	to, ok := edges[ev]
	if !ok {
		return "", fmt.Errorf("invalid transition from %s on %s", from, ev)
	}
	return to, nil
}
