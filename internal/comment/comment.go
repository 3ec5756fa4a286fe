// Package comment posts an optional completion comment to a downstream
// endpoint once a run reaches a terminal status. Failures here are reported
// to the caller but are never fatal to the controller.
package comment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/Backland-Labs/relay/internal/github"
	"github.com/Backland-Labs/relay/internal/logger"
)

const requestTimeout = 30 * time.Second

// Notifier posts completion comments to a single downstream URL.
type Notifier struct {
	http *resty.Client
	url  string
}

// NewNotifier creates a Notifier for the given endpoint. The token is
// optional; when set it is sent as a bearer credential.
func NewNotifier(url, token string) *Notifier {
	c := resty.New().
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Notifier{http: c, url: url}
}

// Notify posts a JSON comment body describing the run's conclusion.
func (n *Notifier) Notify(ctx context.Context, run *github.Run) error {
	body := map[string]string{
		"body": fmt.Sprintf("Workflow run %d (%s) concluded %s: %s", run.ID, run.Name, run.Conclusion, run.URL),
	}

	resp, err := n.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to post completion comment: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("comment endpoint returned %s", resp.Status())
	}

	if id := gjson.GetBytes(resp.Body(), "id"); id.Exists() {
		logger.WithField("comment_id", id.String()).Debug("Posted completion comment")
	}
	return nil
}
