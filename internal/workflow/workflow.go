// Package workflow implements the trigger-and-wait controller: it records a
// baseline snapshot of existing runs, dispatches a new run, discovers the
// run IDs the dispatch produced by diffing listings, and polls each one
// until it reaches a terminal status.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/Backland-Labs/relay/internal/config"
	"github.com/Backland-Labs/relay/internal/core"
	"github.com/Backland-Labs/relay/internal/github"
	"github.com/Backland-Labs/relay/internal/logger"
	"github.com/Backland-Labs/relay/internal/output"
)

// clockSkewMargin widens the listing window so runs created just before the
// local clock reading are not missed.
const clockSkewMargin = 120 * time.Second

// correlationInput is the dispatch input key carrying the correlation token.
const correlationInput = "correlation"

// Transient API errors are retried with capped exponential backoff before
// the poll loop gives up on the current pass.
const (
	transientRetries = 3
	retryBase        = 500 * time.Millisecond
)

// GitHubClient is the API surface the engine needs.
type GitHubClient interface {
	ListDispatchRuns(ctx context.Context, since time.Time, nameFilter string) ([]github.Run, error)
	Dispatch(ctx context.Context, ref string, inputs map[string]any) error
	GetRun(ctx context.Context, id int64) (*github.Run, error)
}

// Notifier is told about each run that reached a terminal status.
type Notifier interface {
	Notify(ctx context.Context, run *github.Run) error
}

// Engine orchestrates the trigger and wait stages.
type Engine struct {
	client   GitHubClient
	cfg      *config.Config
	printer  *output.Printer
	notifier Notifier
}

// NewEngine creates a new workflow engine
func NewEngine(client GitHubClient, cfg *config.Config) *Engine {
	return &Engine{
		client:  client,
		cfg:     cfg,
		printer: output.NewPrinter(),
	}
}

// SetPrinter allows overriding the printer (mainly for testing)
func (e *Engine) SetPrinter(printer *output.Printer) {
	e.printer = printer
}

// SetNotifier installs an optional completion notifier
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Run executes the full trigger-and-wait sequence according to the stage
// toggles. Skipped stages are not an error.
func (e *Engine) Run(ctx context.Context) error {
	if !e.cfg.TriggerWorkflow && !e.cfg.WaitWorkflow {
		e.printer.Info("Trigger and wait stages both disabled, nothing to do")
		return nil
	}

	// Dispatch-only mode never polls, so run discovery is skipped entirely.
	if e.cfg.TriggerWorkflow && !e.cfg.WaitWorkflow {
		inputs, _ := e.prepareInputs()
		e.printer.Step("Dispatching %s@%s", e.cfg.Workflow, e.cfg.Ref)
		if err := e.client.Dispatch(ctx, e.cfg.Ref, inputs); err != nil {
			return err
		}
		e.printer.Success("Dispatched %s@%s (wait disabled)", e.cfg.Workflow, e.cfg.Ref)
		return nil
	}

	var (
		newRuns core.Snapshot
		err     error
	)

	if e.cfg.TriggerWorkflow {
		newRuns, err = e.Dispatch(ctx)
		if err != nil {
			return err
		}
	} else {
		// Wait-only mode has no baseline to diff against; any run created
		// within the clock-skew window counts as the run to wait on.
		since := time.Now().Add(-clockSkewMargin)
		newRuns, err = e.discover(ctx, since, core.Snapshot{}, "")
		if err != nil {
			return err
		}
	}

	e.printer.Info("Waiting on %d run(s)", len(newRuns))

	// Runs are awaited sequentially in discovery order.
	for _, id := range newRuns {
		outcome, run, err := e.AwaitCompletion(ctx, id)
		if err != nil {
			return err
		}
		e.notify(ctx, run)

		switch outcome {
		case core.OutcomeSuccess:
			e.printer.Success("Run %d concluded %s: %s", id, run.Conclusion, run.URL)
		case core.OutcomeFailure:
			if e.cfg.PropagateFailure {
				e.printer.Error("Run %d concluded %s: %s", id, run.Conclusion, run.URL)
				return &FailureError{RunID: id, Conclusion: run.Conclusion}
			}
			e.printer.Warning("Run %d concluded %s (failure not propagated)", id, run.Conclusion)
		case core.OutcomeTimeout:
			e.printer.Error("Run %d did not complete within %s", id, e.cfg.Timeout)
			return fmt.Errorf("run %d: %w", id, ErrWaitTimeout)
		}
	}

	return nil
}

// Dispatch records a baseline snapshot, creates the dispatch event, and
// polls the run listing until IDs outside the baseline appear. The returned
// snapshot holds exactly the new run IDs, ascending.
func (e *Engine) Dispatch(ctx context.Context) (core.Snapshot, error) {
	log := logger.WithField("workflow", e.cfg.Workflow)

	since := time.Now().Add(-clockSkewMargin)

	inputs, token := e.prepareInputs()
	if token != "" {
		log.WithField("token", token).Debug("Injected correlation token into dispatch inputs")
	}

	runs, err := e.listRuns(ctx, since, "")
	if err != nil {
		return nil, err
	}
	baseline := snapshotOf(runs)
	log.WithField("baseline_runs", len(baseline)).Debug("Recorded baseline snapshot")

	e.printer.Step("Dispatching %s@%s", e.cfg.Workflow, e.cfg.Ref)
	if err := e.client.Dispatch(ctx, e.cfg.Ref, inputs); err != nil {
		log.WithError(err).Error("Dispatch request failed")
		return nil, err
	}

	return e.discover(ctx, since, baseline, token)
}

// AwaitCompletion polls a single run until it reaches a terminal status or
// the timeout budget expires. Each poll fetches a fresh run record. The
// returned run is the last record observed.
func (e *Engine) AwaitCompletion(ctx context.Context, runID int64) (core.Outcome, *github.Run, error) {
	log := logger.GetLogger().WithRun(runID, e.cfg.Workflow)

	progress := e.printer.StartProgress(fmt.Sprintf("Waiting for run %d", runID))
	defer progress.Stop()

	deadline := time.Now().Add(e.cfg.Timeout)
	attempt := 0
	for {
		attempt++
		progress.SetAttempt(attempt)

		run, err := e.getRun(ctx, runID)
		if err != nil {
			log.WithError(err).Error("Failed to poll run")
			return core.OutcomeFailure, nil, err
		}
		log.WithFields(map[string]interface{}{
			"status":     run.Status,
			"conclusion": run.Conclusion,
			"attempt":    attempt,
		}).Debug("Polled run")

		if run.Status == core.StatusCompleted {
			if run.Conclusion == core.ConclusionSuccess {
				return core.OutcomeSuccess, run, nil
			}
			return core.OutcomeFailure, run, nil
		}

		if time.Now().After(deadline) {
			log.Warn("Timeout budget expired while waiting for run")
			return core.OutcomeTimeout, run, nil
		}

		if err := sleep(ctx, e.cfg.Interval); err != nil {
			return core.OutcomeFailure, nil, err
		}
	}
}

// discover polls the run listing until it differs from the baseline,
// bounded by the timeout budget.
func (e *Engine) discover(ctx context.Context, since time.Time, baseline core.Snapshot, nameFilter string) (core.Snapshot, error) {
	progress := e.printer.StartProgress("Waiting for a new run to appear")
	defer progress.Stop()

	deadline := time.Now().Add(e.cfg.Timeout)
	attempt := 0
	for {
		attempt++
		progress.SetAttempt(attempt)

		runs, err := e.listRuns(ctx, since, nameFilter)
		if err != nil {
			return nil, err
		}

		if diff := snapshotOf(runs).Diff(baseline); len(diff) > 0 {
			logger.WithField("run_ids", diff).Debug("Discovered new runs")
			return diff, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no new %s run appeared within %s: %w", e.cfg.Workflow, e.cfg.Timeout, ErrDiscoveryTimeout)
		}

		if err := sleep(ctx, e.cfg.Interval); err != nil {
			return nil, err
		}
	}
}

// listRuns lists runs, retrying transient API errors with exponential
// backoff. Fatal errors abort immediately.
func (e *Engine) listRuns(ctx context.Context, since time.Time, nameFilter string) ([]github.Run, error) {
	var runs []github.Run
	backoff := retry.WithMaxRetries(transientRetries, retry.NewExponential(retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rs, err := e.client.ListDispatchRuns(ctx, since, nameFilter)
		if err != nil {
			if github.IsTransient(err) {
				logger.GetLogger().WithError(err).Warn("Transient error listing runs, retrying")
				return retry.RetryableError(err)
			}
			return err
		}
		runs = rs
		return nil
	})
	return runs, err
}

// getRun fetches a run record with the same transient-retry policy as listRuns.
func (e *Engine) getRun(ctx context.Context, runID int64) (*github.Run, error) {
	var run *github.Run
	backoff := retry.WithMaxRetries(transientRetries, retry.NewExponential(retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := e.client.GetRun(ctx, runID)
		if err != nil {
			if github.IsTransient(err) {
				logger.GetLogger().WithError(err).Warn("Transient error fetching run, retrying")
				return retry.RetryableError(err)
			}
			return err
		}
		run = r
		return nil
	})
	return run, err
}

// notify reports a terminal run to the notifier, if one is installed.
// Notification failures are logged but never fatal.
func (e *Engine) notify(ctx context.Context, run *github.Run) {
	if e.notifier == nil || run == nil {
		return
	}
	if err := e.notifier.Notify(ctx, run); err != nil {
		logger.GetLogger().WithError(err).Warn("Completion notification failed")
		e.printer.Warning("Completion notification failed: %v", err)
	}
}

// prepareInputs copies the configured dispatch inputs, injecting a fresh
// correlation token when correlation is enabled. The token doubles as the
// name filter during discovery for workflows that echo inputs into run-name.
func (e *Engine) prepareInputs() (map[string]any, string) {
	inputs := make(map[string]any, len(e.cfg.Inputs)+1)
	for k, v := range e.cfg.Inputs {
		inputs[k] = v
	}
	token := ""
	if e.cfg.Correlation {
		token = uuid.NewString()
		inputs[correlationInput] = token
	}
	return inputs, token
}

func snapshotOf(runs []github.Run) core.Snapshot {
	ids := make([]int64, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return core.NewSnapshot(ids)
}

// sleep blocks for the poll interval, honoring context cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
