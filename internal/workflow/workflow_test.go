package workflow

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	gogithub "github.com/google/go-github/v74/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Backland-Labs/relay/internal/config"
	"github.com/Backland-Labs/relay/internal/core"
	"github.com/Backland-Labs/relay/internal/github"
	"github.com/Backland-Labs/relay/internal/output"
)

// listCall scripts one response of ListDispatchRuns.
type listCall struct {
	runs []github.Run
	err  error
}

// getCall scripts one response of GetRun.
type getCall struct {
	run *github.Run
	err error
}

// fakeClient replays scripted API responses. Once a script is exhausted its
// last entry repeats, which models a listing that has stopped changing.
type fakeClient struct {
	mu sync.Mutex

	lists   []listCall
	listIdx int
	filters []string

	gets   map[int64][]getCall
	getIdx map[int64]int

	dispatchErr error
	dispatches  []map[string]any
}

func (f *fakeClient) ListDispatchRuns(ctx context.Context, since time.Time, nameFilter string) ([]github.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, nameFilter)
	if len(f.lists) == 0 {
		return nil, nil
	}
	idx := f.listIdx
	if idx >= len(f.lists) {
		idx = len(f.lists) - 1
	}
	f.listIdx++
	return f.lists[idx].runs, f.lists[idx].err
}

func (f *fakeClient) Dispatch(ctx context.Context, ref string, inputs map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatches = append(f.dispatches, inputs)
	return f.dispatchErr
}

func (f *fakeClient) GetRun(ctx context.Context, id int64) (*github.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.gets[id]
	if len(calls) == 0 {
		return nil, errors.New("no scripted response for run")
	}
	if f.getIdx == nil {
		f.getIdx = map[int64]int{}
	}
	idx := f.getIdx[id]
	if idx >= len(calls) {
		idx = len(calls) - 1
	}
	f.getIdx[id]++
	return calls[idx].run, calls[idx].err
}

func (f *fakeClient) dispatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatches)
}

func runsOf(ids ...int64) []github.Run {
	runs := make([]github.Run, 0, len(ids))
	for _, id := range ids {
		runs = append(runs, github.Run{ID: id, Status: core.StatusQueued})
	}
	return runs
}

func completedRun(id int64, conclusion string) *github.Run {
	return &github.Run{ID: id, Status: core.StatusCompleted, Conclusion: conclusion}
}

func inProgressRun(id int64) *github.Run {
	return &github.Run{ID: id, Status: core.StatusInProgress}
}

// testConfig returns a config with intervals short enough for tests.
func testConfig() *config.Config {
	return &config.Config{
		Owner:            "acme",
		Repo:             "widgets",
		Token:            "token",
		Workflow:         "deploy.yml",
		Ref:              "main",
		Inputs:           map[string]any{"env": "staging"},
		Interval:         5 * time.Millisecond,
		Timeout:          time.Second,
		PropagateFailure: true,
		TriggerWorkflow:  true,
		WaitWorkflow:     true,
	}
}

func newTestEngine(client GitHubClient, cfg *config.Config) *Engine {
	engine := NewEngine(client, cfg)
	engine.SetPrinter(output.NewPrinterWithWriters(io.Discard, io.Discard, false))
	return engine
}

func transientAPIError() error {
	return &gogithub.ErrorResponse{
		Response: &http.Response{
			StatusCode: http.StatusBadGateway,
			Request:    &http.Request{Method: http.MethodGet, URL: &url.URL{}},
		},
	}
}

func fatalAPIError() error {
	return &gogithub.ErrorResponse{
		Response: &http.Response{
			StatusCode: http.StatusNotFound,
			Request:    &http.Request{Method: http.MethodGet, URL: &url.URL{}},
		},
	}
}

func TestDispatchDiscoversNewRuns(t *testing.T) {
	// Baseline [101,102]; one unchanged poll; then run 103 appears.
	client := &fakeClient{
		lists: []listCall{
			{runs: runsOf(101, 102)},
			{runs: runsOf(101, 102)},
			{runs: runsOf(101, 102, 103)},
		},
	}
	engine := newTestEngine(client, testConfig())

	newRuns, err := engine.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.Snapshot{103}, newRuns)
	require.Equal(t, 1, client.dispatchCount())
	assert.Equal(t, map[string]any{"env": "staging"}, client.dispatches[0])
}

func TestDispatchTimesOutWhenNoRunAppears(t *testing.T) {
	// The listing never changes, so discovery must stop at the budget
	// instead of looping forever.
	client := &fakeClient{
		lists: []listCall{{runs: runsOf(101, 102)}},
	}
	cfg := testConfig()
	cfg.Timeout = 30 * time.Millisecond
	engine := newTestEngine(client, cfg)

	_, err := engine.Dispatch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiscoveryTimeout)
}

func TestDispatchRetriesTransientListErrors(t *testing.T) {
	client := &fakeClient{
		lists: []listCall{
			{err: transientAPIError()},
			{runs: runsOf(101)},
			{runs: runsOf(101, 103)},
		},
	}
	engine := newTestEngine(client, testConfig())

	newRuns, err := engine.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Snapshot{103}, newRuns)
}

func TestDispatchAbortsOnFatalListError(t *testing.T) {
	client := &fakeClient{
		lists: []listCall{{err: fatalAPIError()}},
	}
	engine := newTestEngine(client, testConfig())

	_, err := engine.Dispatch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, client.dispatchCount())
}

func TestDispatchInjectsCorrelationToken(t *testing.T) {
	client := &fakeClient{
		lists: []listCall{
			{runs: runsOf(101)},
			{runs: runsOf(101, 103)},
		},
	}
	cfg := testConfig()
	cfg.Correlation = true
	engine := newTestEngine(client, cfg)

	_, err := engine.Dispatch(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, client.dispatchCount())
	token, ok := client.dispatches[0]["correlation"].(string)
	require.True(t, ok, "dispatch inputs must carry a correlation token")
	assert.NotEmpty(t, token)

	// Discovery passes the token as the name filter; the baseline listing
	// does not.
	require.GreaterOrEqual(t, len(client.filters), 2)
	assert.Equal(t, "", client.filters[0])
	assert.Equal(t, token, client.filters[len(client.filters)-1])
}

func TestAwaitCompletionSuccess(t *testing.T) {
	// in_progress, then completed/success: terminal success.
	client := &fakeClient{
		gets: map[int64][]getCall{
			103: {
				{run: inProgressRun(103)},
				{run: completedRun(103, core.ConclusionSuccess)},
			},
		},
	}
	engine := newTestEngine(client, testConfig())

	outcome, run, err := engine.AwaitCompletion(context.Background(), 103)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSuccess, outcome)
	assert.Equal(t, core.ConclusionSuccess, run.Conclusion)
}

func TestAwaitCompletionNonSuccessConclusions(t *testing.T) {
	// Any completed conclusion other than success is a failure outcome.
	for _, conclusion := range []string{core.ConclusionFailure, core.ConclusionCancelled, "timed_out"} {
		t.Run(conclusion, func(t *testing.T) {
			client := &fakeClient{
				gets: map[int64][]getCall{
					103: {{run: completedRun(103, conclusion)}},
				},
			}
			engine := newTestEngine(client, testConfig())

			outcome, run, err := engine.AwaitCompletion(context.Background(), 103)
			require.NoError(t, err)
			assert.Equal(t, core.OutcomeFailure, outcome)
			assert.Equal(t, conclusion, run.Conclusion)
		})
	}
}

func TestAwaitCompletionTimeout(t *testing.T) {
	client := &fakeClient{
		gets: map[int64][]getCall{
			103: {{run: inProgressRun(103)}},
		},
	}
	cfg := testConfig()
	cfg.Timeout = 30 * time.Millisecond
	engine := newTestEngine(client, cfg)

	outcome, _, err := engine.AwaitCompletion(context.Background(), 103)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeTimeout, outcome)
}

func TestAwaitCompletionContextCancelled(t *testing.T) {
	client := &fakeClient{
		gets: map[int64][]getCall{
			103: {{run: inProgressRun(103)}},
		},
	}
	engine := newTestEngine(client, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := engine.AwaitCompletion(ctx, 103)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunSuccess(t *testing.T) {
	client := &fakeClient{
		lists: []listCall{
			{runs: runsOf(101)},
			{runs: runsOf(101, 103)},
		},
		gets: map[int64][]getCall{
			103: {
				{run: inProgressRun(103)},
				{run: completedRun(103, core.ConclusionSuccess)},
			},
		},
	}
	engine := newTestEngine(client, testConfig())

	err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, client.dispatchCount())
}

func TestRunFailurePropagates(t *testing.T) {
	client := &fakeClient{
		lists: []listCall{
			{runs: runsOf(101)},
			{runs: runsOf(101, 103)},
		},
		gets: map[int64][]getCall{
			103: {{run: completedRun(103, core.ConclusionFailure)}},
		},
	}
	engine := newTestEngine(client, testConfig())

	err := engine.Run(context.Background())
	require.Error(t, err)

	var failure *FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, int64(103), failure.RunID)
	assert.Equal(t, core.ConclusionFailure, failure.Conclusion)
}

func TestRunFailureSwallowedWhenNotPropagated(t *testing.T) {
	// propagate-failure=false: the failing run is reported but the
	// process still succeeds.
	client := &fakeClient{
		lists: []listCall{
			{runs: runsOf(101)},
			{runs: runsOf(101, 103)},
		},
		gets: map[int64][]getCall{
			103: {{run: completedRun(103, core.ConclusionFailure)}},
		},
	}
	cfg := testConfig()
	cfg.PropagateFailure = false
	engine := newTestEngine(client, cfg)

	err := engine.Run(context.Background())
	require.NoError(t, err)
}

func TestRunWaitTimeout(t *testing.T) {
	client := &fakeClient{
		lists: []listCall{
			{runs: runsOf(101)},
			{runs: runsOf(101, 103)},
		},
		gets: map[int64][]getCall{
			103: {{run: inProgressRun(103)}},
		},
	}
	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	engine := newTestEngine(client, cfg)

	err := engine.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestRunAwaitsMultipleRunsInDiscoveryOrder(t *testing.T) {
	client := &fakeClient{
		lists: []listCall{
			{runs: runsOf(101)},
			{runs: runsOf(101, 104, 103)},
		},
		gets: map[int64][]getCall{
			103: {{run: completedRun(103, core.ConclusionSuccess)}},
			104: {{run: completedRun(104, core.ConclusionSuccess)}},
		},
	}
	engine := newTestEngine(client, testConfig())

	err := engine.Run(context.Background())
	require.NoError(t, err)

	// Both discovered runs were polled.
	assert.Equal(t, 1, client.getIdx[103])
	assert.Equal(t, 1, client.getIdx[104])
}

func TestRunDispatchOnly(t *testing.T) {
	// wait-workflow=false: dispatch without any polling.
	client := &fakeClient{}
	cfg := testConfig()
	cfg.WaitWorkflow = false
	engine := newTestEngine(client, cfg)

	err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, client.dispatchCount())
	assert.Empty(t, client.filters, "dispatch-only mode must not list runs")
}

func TestRunWaitOnly(t *testing.T) {
	// trigger-workflow=false: no dispatch, wait on whatever run appears
	// inside the clock-skew window.
	client := &fakeClient{
		lists: []listCall{{runs: runsOf(105)}},
		gets: map[int64][]getCall{
			105: {{run: completedRun(105, core.ConclusionSuccess)}},
		},
	}
	cfg := testConfig()
	cfg.TriggerWorkflow = false
	engine := newTestEngine(client, cfg)

	err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, client.dispatchCount())
}

func TestRunBothStagesDisabled(t *testing.T) {
	client := &fakeClient{}
	cfg := testConfig()
	cfg.TriggerWorkflow = false
	cfg.WaitWorkflow = false
	engine := newTestEngine(client, cfg)

	err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, client.dispatchCount())
	assert.Empty(t, client.filters)
}

type recordingNotifier struct {
	mu   sync.Mutex
	runs []*github.Run
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, run *github.Run) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run)
	return n.err
}

func TestRunNotifiesOnCompletion(t *testing.T) {
	client := &fakeClient{
		lists: []listCall{
			{runs: runsOf(101)},
			{runs: runsOf(101, 103)},
		},
		gets: map[int64][]getCall{
			103: {{run: completedRun(103, core.ConclusionSuccess)}},
		},
	}
	engine := newTestEngine(client, testConfig())
	notifier := &recordingNotifier{}
	engine.SetNotifier(notifier)

	err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, notifier.runs, 1)
	assert.Equal(t, int64(103), notifier.runs[0].ID)
}

func TestRunNotifierFailureIsNotFatal(t *testing.T) {
	client := &fakeClient{
		lists: []listCall{
			{runs: runsOf(101)},
			{runs: runsOf(101, 103)},
		},
		gets: map[int64][]getCall{
			103: {{run: completedRun(103, core.ConclusionSuccess)}},
		},
	}
	engine := newTestEngine(client, testConfig())
	engine.SetNotifier(&recordingNotifier{err: errors.New("endpoint down")})

	err := engine.Run(context.Background())
	require.NoError(t, err)
}
