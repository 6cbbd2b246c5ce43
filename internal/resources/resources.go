// Package resources is the process-wide governor: worker admission, API
// call pacing, advisory memory accounting, and temp-file cleanup.
package resources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/lintfix/lintfix/internal/runner"
	"github.com/lintfix/lintfix/internal/types"
)

const (
	// memoryPollInterval is how often a memory-blocked admission re-checks
	// the aggregate
	memoryPollInterval = 500 * time.Millisecond

	// staleTempAge is how old an orphaned temp file must be before the
	// sweep removes it
	staleTempAge = time.Hour
)

// Manager enforces the configured ResourceBudget. Worker admission is a
// counting semaphore, API pacing is a token bucket, and memory accounting
// is advisory: executors report observed peaks and admission pauses while
// the aggregate sits above the ceiling.
type Manager struct {
	budget types.ResourceBudget

	workers *semaphore.Weighted
	limiter *rate.Limiter

	mu      sync.Mutex
	temps   map[string]struct{}
	taskMem map[string]int64
	active  int
}

// Manager collects the executor's temp files for end-of-run cleanup.
var _ runner.TempRegistry = (*Manager)(nil)

// New creates a Manager for the budget.
func New(budget types.ResourceBudget) (*Manager, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		budget:  budget,
		workers: semaphore.NewWeighted(int64(budget.MaxWorkers)),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(budget.APIRateLimit)), budget.APIRateLimit),
		temps:   make(map[string]struct{}),
		taskMem: make(map[string]int64),
	}, nil
}

// Admit blocks until a worker slot frees and the memory aggregate is under
// the ceiling. The error is the context's own error when cancellation cut
// the wait short, except for memory waits, which surface as
// ResourceLimitError.
func (m *Manager) Admit(ctx context.Context) error {
	if err := m.workers.Acquire(ctx, 1); err != nil {
		return err
	}
	// Hold the slot while waiting for memory headroom; giving it up here
	// would let admissions leapfrog the queue.
	if err := m.waitForMemory(ctx); err != nil {
		m.workers.Release(1)
		return err
	}

	m.mu.Lock()
	m.active++
	m.mu.Unlock()
	return nil
}

// Release returns a worker slot.
func (m *Manager) Release() {
	m.mu.Lock()
	if m.active > 0 {
		m.active--
	}
	m.mu.Unlock()
	m.workers.Release(1)
}

func (m *Manager) waitForMemory(ctx context.Context) error {
	for {
		if m.AggregateMemoryMB() <= int64(m.budget.MaxMemoryMB) {
			return nil
		}
		select {
		case <-ctx.Done():
			return &types.ResourceLimitError{
				Resource: "memory",
				Limit:    fmt.Sprintf("%dMB", m.budget.MaxMemoryMB),
				Message:  "aggregate memory stayed above the ceiling until cancellation",
			}
		case <-time.After(memoryPollInterval):
		}
	}
}

// AcquireToken blocks until an API call token is available. Local worker
// saturation fails fast at Admit; external rate limits wait here.
func (m *Manager) AcquireToken(ctx context.Context) error {
	return m.limiter.Wait(ctx)
}

// ReportMemory records a task's observed peak memory. Reports below the
// task's previous peak are ignored.
func (m *Manager) ReportMemory(taskID string, peakMB int64) {
	if peakMB <= 0 {
		return
	}
	m.mu.Lock()
	if peakMB > m.taskMem[taskID] {
		m.taskMem[taskID] = peakMB
	}
	m.mu.Unlock()
}

// ClearMemory drops a finished task's contribution to the aggregate.
func (m *Manager) ClearMemory(taskID string) {
	m.mu.Lock()
	delete(m.taskMem, taskID)
	m.mu.Unlock()
}

// ActiveWorkers reports how many admissions are currently outstanding.
func (m *Manager) ActiveWorkers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// AggregateMemoryMB sums the reported peaks of all live tasks.
func (m *Manager) AggregateMemoryMB() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, mb := range m.taskMem {
		total += mb
	}
	return total
}

// NeedsCleanup reports whether the aggregate has crossed the opportunistic
// cleanup threshold.
func (m *Manager) NeedsCleanup() bool {
	return m.AggregateMemoryMB() > int64(m.budget.CleanupThresholdMB)
}

// RegisterTemp tracks a temp file for cleanup.
func (m *Manager) RegisterTemp(path string) {
	m.mu.Lock()
	m.temps[path] = struct{}{}
	m.mu.Unlock()
}

// Cleanup removes every registered temp file and sweeps orphaned temp
// files from previous runs. Failures are warnings; cleanup keeps going.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	registered := make([]string, 0, len(m.temps))
	for path := range m.temps {
		registered = append(registered, path)
	}
	m.temps = make(map[string]struct{})
	m.mu.Unlock()

	for _, path := range registered {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: failed to remove temp file %s: %v\n", path, err)
		}
	}

	m.sweepStale(os.TempDir())
}

// sweepStale removes temp files carrying the executor's prefix that are
// older than staleTempAge. These are leftovers from runs that died before
// their own Cleanup.
func (m *Manager) sweepStale(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-staleTempAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), runner.TempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale temp file %s: %v\n", path, err)
		}
	}
}
