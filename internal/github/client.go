// Package github wraps the Actions API surface the relay controller needs:
// listing workflow_dispatch runs, creating dispatch events, and fetching a
// single run. All calls are authenticated with a bearer token.
package github

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"
)

// listPageSize is the maximum page size the runs listing endpoint accepts.
const listPageSize = 100

// Run is the subset of a workflow run the controller cares about.
// It is fetched fresh on every poll and never cached.
type Run struct {
	ID         int64
	Name       string
	Status     string
	Conclusion string
	URL        string
}

// Client talks to the Actions API for a single workflow of a single repository.
type Client struct {
	gh       *gogithub.Client
	owner    string
	repo     string
	workflow string
}

// NewClient creates a Client authenticated with the given token.
func NewClient(token, owner, repo, workflow string) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: strings.TrimSpace(token)},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	return &Client{
		gh:       gogithub.NewClient(tc),
		owner:    owner,
		repo:     repo,
		workflow: workflow,
	}
}

// NewClientWithGitHub creates a Client around an existing go-github client.
// Used by tests to point the client at a local server.
func NewClientWithGitHub(gh *gogithub.Client, owner, repo, workflow string) *Client {
	return &Client{gh: gh, owner: owner, repo: repo, workflow: workflow}
}

// ListDispatchRuns returns the workflow_dispatch runs of the configured
// workflow created at or after since, optionally filtered to runs whose
// display name contains nameFilter. Run IDs are sorted ascending so that
// snapshot diffs are stable.
func (c *Client) ListDispatchRuns(ctx context.Context, since time.Time, nameFilter string) ([]Run, error) {
	opts := &gogithub.ListWorkflowRunsOptions{
		Event:   "workflow_dispatch",
		Created: ">=" + since.UTC().Format(time.RFC3339),
		ListOptions: gogithub.ListOptions{
			PerPage: listPageSize,
		},
	}

	runs, _, err := c.gh.Actions.ListWorkflowRunsByFileName(ctx, c.owner, c.repo, c.workflow, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for %s: %w", c.workflow, err)
	}

	out := make([]Run, 0, len(runs.WorkflowRuns))
	for _, wr := range runs.WorkflowRuns {
		if nameFilter != "" && !strings.Contains(wr.GetName(), nameFilter) {
			continue
		}
		out = append(out, fromWorkflowRun(wr))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Dispatch creates a workflow_dispatch event for the configured workflow.
// The API schedules the run asynchronously and returns no run ID, which is
// why discovery happens by diffing run listings afterwards.
func (c *Client) Dispatch(ctx context.Context, ref string, inputs map[string]any) error {
	req := gogithub.CreateWorkflowDispatchEventRequest{
		Ref:    ref,
		Inputs: inputs,
	}
	if _, err := c.gh.Actions.CreateWorkflowDispatchEventByFileName(ctx, c.owner, c.repo, c.workflow, req); err != nil {
		return fmt.Errorf("failed to dispatch %s@%s: %w", c.workflow, ref, err)
	}
	return nil
}

// GetRun fetches the current record of a single run.
func (c *Client) GetRun(ctx context.Context, id int64) (*Run, error) {
	wr, _, err := c.gh.Actions.GetWorkflowRunByID(ctx, c.owner, c.repo, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	run := fromWorkflowRun(wr)
	return &run, nil
}

func fromWorkflowRun(wr *gogithub.WorkflowRun) Run {
	return Run{
		ID:         wr.GetID(),
		Name:       wr.GetName(),
		Status:     wr.GetStatus(),
		Conclusion: wr.GetConclusion(),
		URL:        wr.GetHTMLURL(),
	}
}
