// Package agent runs one remediation pass end to end: discover candidate
// files from the git index, fan them out to a bounded worker pool, and
// aggregate the per-file outcomes into a run summary.
package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lintfix/lintfix/internal/config"
	"github.com/lintfix/lintfix/internal/events"
	"github.com/lintfix/lintfix/internal/git"
	"github.com/lintfix/lintfix/internal/storage"
	"github.com/lintfix/lintfix/internal/types"
)

// TaskProcessor drives one file task to a terminal state. Satisfied by
// *processor.FileProcessor.
type TaskProcessor interface {
	Process(ctx context.Context, task *types.FileTask) *types.ProcessingResult
}

// ResourceGovernor gates worker admission and cleans up run residue.
// Satisfied by *resources.Manager.
type ResourceGovernor interface {
	Admit(ctx context.Context) error
	Release()
	AggregateMemoryMB() int64
	NeedsCleanup() bool
	Cleanup()
}

// Config assembles an Agent. Git, Processor, and Governor are required;
// Store is optional, and a nil one skips event persistence.
type Config struct {
	// Config carries the run settings, discovery filters among them
	Config *config.Config

	// RunID tags every event of this run; autogenerated when empty
	RunID string

	// Version is stamped into the run lock
	Version string

	// Git answers index and working-tree questions
	Git git.Operations

	// Processor takes each discovered file to a terminal state
	Processor TaskProcessor

	// Governor bounds concurrency and memory
	Governor ResourceGovernor

	// Store persists run events
	Store storage.Store

	// Output receives progress lines (default os.Stdout)
	Output io.Writer
}

// Agent orchestrates a remediation run.
type Agent struct {
	cfg      *config.Config
	runID    string
	version  string
	git      git.Operations
	proc     TaskProcessor
	governor ResourceGovernor
	store    storage.Store
	sink     *StoreSink
	filter   *filter
	out      io.Writer
}

// New validates the wiring and compiles the discovery filter.
func New(c *Config) (*Agent, error) {
	if c == nil || c.Config == nil {
		return nil, types.NewValidationError("config", "is required")
	}
	if c.Git == nil {
		return nil, types.NewValidationError("git", "is required")
	}
	if c.Processor == nil {
		return nil, types.NewValidationError("processor", "is required")
	}
	if c.Governor == nil {
		return nil, types.NewValidationError("governor", "is required")
	}

	f, err := newFilter(c.Config)
	if err != nil {
		return nil, err
	}

	runID := c.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	version := c.Version
	if version == "" {
		version = "dev"
	}
	out := c.Output
	if out == nil {
		out = os.Stdout
	}

	return &Agent{
		cfg:      c.Config,
		runID:    runID,
		version:  version,
		git:      c.Git,
		proc:     c.Processor,
		governor: c.Governor,
		store:    c.Store,
		sink:     NewStoreSink(c.Store),
		filter:   f,
		out:      out,
	}, nil
}

// RunID returns the identifier stamped on this run's events.
func (a *Agent) RunID() string { return a.runID }

// Summary aggregates the terminal outcomes of one remediation run.
type Summary struct {
	Committed   int           `json:"committed"`
	Reverted    int           `json:"reverted"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	IssuesFound int           `json:"issues_found"`
	IssuesFixed int           `json:"issues_fixed"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
}

// Total returns the number of tasks that reached a terminal state.
func (s *Summary) Total() int {
	return s.Committed + s.Reverted + s.Failed + s.Skipped
}

func (s *Summary) add(res *types.ProcessingResult) {
	switch res.FinalState {
	case types.StateCommitted:
		s.Committed++
	case types.StateReverted:
		s.Reverted++
	case types.StateFailed:
		s.Failed++
	case types.StateSkipped:
		s.Skipped++
	}
	s.IssuesFound += res.IssuesFound
	s.IssuesFixed += res.IssuesFixed
}

func (s *Summary) eventData() map[string]interface{} {
	return map[string]interface{}{
		"committed":    s.Committed,
		"reverted":     s.Reverted,
		"failed":       s.Failed,
		"skipped":      s.Skipped,
		"issues_found": s.IssuesFound,
		"issues_fixed": s.IssuesFixed,
		"duration_ms":  s.Duration.Milliseconds(),
		"success":      s.Success,
	}
}

// Run executes one remediation pass. The working tree must be clean; a
// dirty tree aborts before any task starts. A canceled run drains its
// in-flight tasks, then returns the partial summary alongside ctx.Err().
func (a *Agent) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	clean, err := a.git.IsClean(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check working tree: %w", err)
	}
	if !clean {
		return nil, &types.GitStateError{
			Op:     "status",
			Reason: "working tree has uncommitted changes; commit or stash them first",
		}
	}

	lockPath, err := storage.AcquireRunLock(a.lockDir(), a.version)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := storage.ReleaseRunLock(lockPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to release run lock: %v\n", err)
		}
	}()

	files, err := a.discover(ctx)
	if err != nil {
		return nil, err
	}

	a.sink.Record(ctx, events.New(events.EventTypeRunStarted, a.runID, events.SeverityInfo,
		fmt.Sprintf("run started: %d candidate files, %d workers", len(files), a.workers()),
		map[string]interface{}{
			"files":       len(files),
			"max_workers": a.workers(),
			"dry_run":     a.cfg.DryRun,
			"linters":     strings.Join(a.cfg.LinterSet(), ","),
		}))

	summary := &Summary{}
	if len(files) == 0 {
		fmt.Fprintln(a.out, "no eligible files found")
		summary.Success = true
		summary.Duration = time.Since(start)
		a.finish(ctx, summary, 0, 0)
		return summary, nil
	}

	fmt.Fprintf(a.out, "processing %d files with %d workers\n", len(files), a.workers())

	created := time.Now()
	tasks := make([]*types.FileTask, len(files))
	for i, file := range files {
		tasks[i] = &types.FileTask{
			ID:        uuid.New().String(),
			File:      file,
			State:     types.StatePending,
			CreatedAt: created,
		}
	}

	done := 0
	for res := range a.dispatch(ctx, tasks) {
		done++
		summary.add(res)
		a.printResult(done, len(tasks), res)
	}

	summary.Duration = time.Since(start)
	summary.Success = ctx.Err() == nil && summary.Failed == 0

	a.finish(ctx, summary, done, len(tasks))
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

// dispatch feeds tasks to a fixed pool of workers and returns the results
// channel, which closes once every worker exits. Cancellation stops the
// feed; tasks a worker already accepted run to their terminal state.
func (a *Agent) dispatch(ctx context.Context, tasks []*types.FileTask) <-chan *types.ProcessingResult {
	taskCh := make(chan *types.FileTask)
	results := make(chan *types.ProcessingResult, len(tasks))

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < a.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.work(ctx, taskCh, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// work is one pool worker: admit, process to terminal, release, report.
func (a *Agent) work(ctx context.Context, tasks <-chan *types.FileTask, results chan<- *types.ProcessingResult) {
	for task := range tasks {
		if agg := a.governor.AggregateMemoryMB(); agg > int64(a.cfg.MaxMemoryMB) {
			a.sink.Record(ctx, events.NewTaskEvent(events.EventTypeMemoryPaused, a.runID, task.ID, task.File,
				events.SeverityWarning,
				fmt.Sprintf("admission waiting on memory: %dMB in use against a %dMB ceiling", agg, a.cfg.MaxMemoryMB),
				map[string]interface{}{"aggregate_mb": agg, "ceiling_mb": a.cfg.MaxMemoryMB}))
		}
		if err := a.governor.Admit(ctx); err != nil {
			task.State = types.StateSkipped
			results <- &types.ProcessingResult{
				File:       task.File,
				FinalState: types.StateSkipped,
				Error:      err.Error(),
			}
			continue
		}

		a.sink.Record(ctx, events.NewTaskEvent(events.EventTypeTaskDispatched, a.runID, task.ID, task.File,
			events.SeverityInfo, fmt.Sprintf("dispatched %s", task.File), nil))

		res := a.proc.Process(ctx, task)
		a.governor.Release()
		a.reportTask(ctx, task, res)
		results <- res

		// Opportunistic cleanup between tasks keeps long runs under the
		// temp threshold without waiting for the end of the run.
		if a.governor.NeedsCleanup() {
			a.governor.Cleanup()
		}
	}
}

func (a *Agent) reportTask(ctx context.Context, task *types.FileTask, res *types.ProcessingResult) {
	severity := events.SeverityInfo
	if res.FinalState == types.StateFailed {
		severity = events.SeverityError
	}
	a.sink.Record(ctx, events.NewTaskEvent(events.EventTypeTaskCompleted, a.runID, task.ID, task.File, severity,
		fmt.Sprintf("%s finished %s", task.File, res.FinalState),
		map[string]interface{}{
			"final_state":  string(res.FinalState),
			"issues_found": res.IssuesFound,
			"issues_fixed": res.IssuesFixed,
			"attempts":     res.Attempts,
			"duration_ms":  res.Duration.Milliseconds(),
		}))
}

// finish runs end-of-run cleanup and records the closing run event. It runs
// for completed, empty, and canceled runs alike.
func (a *Agent) finish(ctx context.Context, s *Summary, done, total int) {
	a.governor.Cleanup()
	a.sink.Record(ctx, events.New(events.EventTypeCleanupCompleted, a.runID, events.SeverityInfo,
		"temp file cleanup completed", nil))
	a.pruneEvents(ctx)

	if ctx.Err() != nil {
		a.sink.Record(ctx, events.New(events.EventTypeRunCanceled, a.runID, events.SeverityWarning,
			fmt.Sprintf("run canceled after %d of %d files", done, total), s.eventData()))
		return
	}
	severity := events.SeverityInfo
	if s.Failed > 0 {
		severity = events.SeverityWarning
	}
	a.sink.Record(ctx, events.New(events.EventTypeRunCompleted, a.runID, severity,
		fmt.Sprintf("run completed: %d committed, %d reverted, %d failed, %d skipped",
			s.Committed, s.Reverted, s.Failed, s.Skipped), s.eventData()))
}

func (a *Agent) printResult(done, total int, res *types.ProcessingResult) {
	prefix := fmt.Sprintf("[%d/%d]", done, total)
	switch res.FinalState {
	case types.StateCommitted:
		fmt.Fprintf(a.out, "%s ✓ %s: fixed %d of %d issues\n", prefix, res.File, res.IssuesFixed, res.IssuesFound)
	case types.StateReverted:
		fmt.Fprintf(a.out, "%s %s: reverted\n", prefix, res.File)
	case types.StateFailed:
		fmt.Fprintf(a.out, "%s ✗ %s: %s\n", prefix, res.File, res.Error)
	default:
		switch {
		case res.Error != "":
			fmt.Fprintf(a.out, "%s %s: skipped (%s)\n", prefix, res.File, res.Error)
		case res.IssuesFound > 0:
			fmt.Fprintf(a.out, "%s %s: %d issues found, no fix attempted\n", prefix, res.File, res.IssuesFound)
		default:
			fmt.Fprintf(a.out, "%s %s: clean\n", prefix, res.File)
		}
	}
}

func (a *Agent) workers() int {
	if a.cfg.MaxWorkers < 1 {
		return 1
	}
	return a.cfg.MaxWorkers
}

// lockDir is the directory holding the run lock: beside the SQLite database,
// or .lintfix under the repo when the store is remote.
func (a *Agent) lockDir() string {
	db := a.cfg.DatabasePath()
	if strings.HasPrefix(db, "postgres://") || strings.HasPrefix(db, "postgresql://") {
		return filepath.Join(a.cfg.RepoPath, ".lintfix")
	}
	return filepath.Dir(db)
}

func (a *Agent) pruneEvents(ctx context.Context) {
	if a.store == nil || !a.cfg.Retention.CleanupEnabled {
		return
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	r := a.cfg.Retention
	pruned, err := a.store.PruneEvents(ctx, r.RetentionDays, r.MaxEvents, r.CleanupBatchSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to prune stored events: %v\n", err)
		return
	}
	if pruned > 0 && a.cfg.Debug {
		fmt.Fprintf(a.out, "pruned %d stored events\n", pruned)
	}
}
