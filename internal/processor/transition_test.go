package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lintfix/lintfix/internal/types"
)

func TestTransitionAcceptsLifecycleEdges(t *testing.T) {
	cases := []struct {
		from types.State
		ev   event
		want types.State
	}{
		{types.StatePending, eventDispatched, types.StateLinting},
		{types.StateLinting, eventNoIssues, types.StateSkipped},
		{types.StateLinting, eventIssuesFound, types.StateGrouping},
		{types.StateGrouping, eventGrouped, types.StateCheckpointed},
		{types.StateGrouping, eventDryRun, types.StateSkipped},
		{types.StateCheckpointed, eventFixStarted, types.StateFixing},
		{types.StateFixing, eventFixApplied, types.StateValidating},
		{types.StateFixing, eventRetry, types.StateCheckpointed},
		{types.StateFixing, eventFatal, types.StateReverted},
		{types.StateValidating, eventCommitted, types.StateCommitted},
		{types.StateValidating, eventRetry, types.StateCheckpointed},
		{types.StateValidating, eventExhausted, types.StateFailed},
		{types.StateValidating, eventCanceled, types.StateReverted},
		{types.StateReverted, eventFailed, types.StateFailed},
	}
	for _, tc := range cases {
		got, err := transition(tc.from, tc.ev)
		require.NoError(t, err, "%s on %s", tc.from, tc.ev)
		assert.Equal(t, tc.want, got, "%s on %s", tc.from, tc.ev)
	}
}

func TestTransitionRejectsInvalidEdges(t *testing.T) {
	cases := []struct {
		from types.State
		ev   event
	}{
		{types.StatePending, eventCommitted},
		{types.StateLinting, eventFixApplied},
		{types.StateValidating, eventDispatched},
		{types.StateCommitted, eventRetry},
		{types.StateSkipped, eventDispatched},
		{types.StateFailed, eventFailed},
	}
	for _, tc := range cases {
		_, err := transition(tc.from, tc.ev)
		require.Error(t, err, "%s on %s", tc.from, tc.ev)
	}
}

func TestTransitionTableIsWellFormed(t *testing.T) {
	for from, edges := range transitions {
		assert.True(t, from.IsValid(), "source %s", from)
		for ev, to := range edges {
			assert.True(t, to.IsValid(), "%s on %s targets %s", from, ev, to)
		}
	}

	// terminal states stay terminal, apart from the fatal unwind
	for _, st := range []types.State{types.StateCommitted, types.StateFailed, types.StateSkipped} {
		_, ok := transitions[st]
		assert.False(t, ok, "terminal state %s must have no outgoing edges", st)
	}
	require.Len(t, transitions[types.StateReverted], 1)
}
