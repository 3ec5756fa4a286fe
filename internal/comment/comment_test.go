package comment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Backland-Labs/relay/internal/github"
)

func testRun() *github.Run {
	return &github.Run{
		ID:         103,
		Name:       "Deploy staging",
		Status:     "completed",
		Conclusion: "success",
		URL:        "https://example.com/runs/103",
	}
}

func TestNotifyPostsComment(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42}`))
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.URL, "comment-secret")
	err := notifier.Notify(context.Background(), testRun())
	require.NoError(t, err)

	assert.Equal(t, "Bearer comment-secret", gotAuth)
	assert.Contains(t, gotBody["body"], "103")
	assert.Contains(t, gotBody["body"], "success")
	assert.Contains(t, gotBody["body"], "https://example.com/runs/103")
}

func TestNotifyWithoutToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.URL, "")
	err := notifier.Notify(context.Background(), testRun())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestNotifyEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.URL, "")
	err := notifier.Notify(context.Background(), testRun())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNotifyUnreachableEndpoint(t *testing.T) {
	notifier := NewNotifier("http://127.0.0.1:1/unreachable", "")
	err := notifier.Notify(context.Background(), testRun())
	assert.Error(t, err)
}
