package tasktracker_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storycut/storycut/pkg/models"
	"github.com/storycut/storycut/pkg/tasktracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPExecutorSubmitAndStatus(t *testing.T) {
	var received tasktracker.JobSpec

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "job-42"})
		case r.Method == http.MethodGet && r.URL.Path == "/jobs/job-42":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "succeeded",
				"result": map[string]any{"video_url": "s3://renders/42.mp4"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	executor := tasktracker.NewHTTPExecutor(server.URL)
	ctx := context.Background()

	jobID, err := executor.Submit(ctx, tasktracker.JobSpec{
		WorkflowID: "wf-1",
		NodeID:     "render-1",
		NodeType:   "render",
		Config:     map[string]any{"story_id": "story-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-42", jobID)
	assert.Equal(t, "render-1", received.NodeID)

	status, payload, err := executor.Status(ctx, "job-42")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusSucceeded, status)
	assert.Equal(t, "s3://renders/42.mp4", payload["video_url"])
}

func TestHTTPExecutorSubmitRetriesOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	executor := tasktracker.NewHTTPExecutor(server.URL)

	_, err := executor.Submit(context.Background(), tasktracker.JobSpec{NodeID: "render-1"})
	assert.ErrorIs(t, err, tasktracker.ErrSubmission)
}

func TestHTTPExecutorStatusUnknownJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	executor := tasktracker.NewHTTPExecutor(server.URL)

	_, _, err := executor.Status(context.Background(), "ghost")
	assert.ErrorIs(t, err, tasktracker.ErrUnknownJob)
}

func TestHTTPExecutorCancelToleratesMissingJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	executor := tasktracker.NewHTTPExecutor(server.URL)

	assert.NoError(t, executor.Cancel(context.Background(), "ghost"))
}
