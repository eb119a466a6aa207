package tasktracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storycut/storycut/pkg/models"
)

const defaultRequestTimeout = 30 * time.Second

// HTTPExecutor talks to the render farm's job API. Submission posts the
// spec, status polls the job resource, cancel deletes it.
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
}

// NewHTTPExecutor creates an executor client for the farm at baseURL.
func NewHTTPExecutor(baseURL string) *HTTPExecutor {
	return &HTTPExecutor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Submit hands the spec to the farm. Unreachable farm or 5xx answers are
// reported as ErrSubmission so the tracker retries them.
func (e *HTTPExecutor) Submit(ctx context.Context, spec JobSpec) (string, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job spec: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build submit request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmission, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("%w: farm answered %d", ErrSubmission, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("farm rejected job for node %s: status %d", spec.NodeID, resp.StatusCode)
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}

	if result.JobID == "" {
		return "", fmt.Errorf("farm returned no job id for node %s", spec.NodeID)
	}

	return result.JobID, nil
}

// Status returns the farm's view of the job.
func (e *HTTPExecutor) Status(ctx context.Context, jobID string) (models.TaskStatus, map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to poll job %s: %w", jobID, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("farm answered %d polling job %s", resp.StatusCode, jobID)
	}

	var result statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", nil, fmt.Errorf("failed to decode status for job %s: %w", jobID, err)
	}

	status := models.TaskStatus(result.Status)
	if result.Error != "" && result.Result == nil {
		result.Result = map[string]any{"error": result.Error}
	}

	return status, result.Result, nil
}

// Cancel requests cancellation. The farm may still finish the job.
func (e *HTTPExecutor) Cancel(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, e.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return fmt.Errorf("failed to build cancel request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}

	defer func() { _ = resp.Body.Close() }()

	// Drain so the connection is reusable.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("farm answered %d cancelling job %s", resp.StatusCode, jobID)
	}

	return nil
}
