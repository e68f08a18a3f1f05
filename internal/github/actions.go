package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/microsoft/gitagu/internal/model"
)

// Actions helpers used by agent integrations that run work through GitHub
// Actions (self-hosted runner registration, workflow dispatch, run status).

// CreateRunnerToken creates a registration token for GitHub Actions runners
func (f *Fetcher) CreateRunnerToken(ctx context.Context, owner, repo string) (*model.RunnerTokenResponse, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/runners/registration-token", f.client.baseURL, owner, repo)

	var token model.RunnerTokenResponse
	if err := f.client.postJSON(ctx, "create_runner_token", url, nil, http.StatusCreated, &token); err != nil {
		return nil, fmt.Errorf("failed to create runner token for %s/%s: %w", owner, repo, err)
	}

	return &token, nil
}

// DispatchWorkflow triggers a workflow_dispatch event with the given inputs.
// When ref is empty the repository's default branch is used.
func (f *Fetcher) DispatchWorkflow(ctx context.Context, owner, repo, workflowID string, inputs map[string]string, ref string) error {
	if ref == "" {
		meta, err := f.GetRepositoryMetadata(ctx, owner, repo)
		if err != nil {
			return fmt.Errorf("failed to resolve default branch: %w", err)
		}
		ref = meta.DefaultBranch
	}

	payload, err := json.Marshal(map[string]any{
		"ref":    ref,
		"inputs": inputs,
	})
	if err != nil {
		return fmt.Errorf("failed to encode dispatch payload: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/dispatches", f.client.baseURL, owner, repo, workflowID)
	if err := f.client.postJSON(ctx, "dispatch_workflow", url, payload, http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("failed to dispatch workflow %s for %s/%s: %w", workflowID, owner, repo, err)
	}

	return nil
}

// GetWorkflowLogsURL returns the download URL for a workflow run's logs
func (f *Fetcher) GetWorkflowLogsURL(ctx context.Context, owner, repo string, runID int64) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/runs/%d", f.client.baseURL, owner, repo, runID)

	var raw struct {
		LogsURL string `json:"logs_url"`
	}
	if err := f.client.getJSON(ctx, "get_workflow_run", url, &raw); err != nil {
		return "", fmt.Errorf("failed to get workflow run %d for %s/%s: %w", runID, owner, repo, err)
	}

	return raw.LogsURL, nil
}

// GetWorkflowRuns returns the most recent runs of a workflow, newest first
func (f *Fetcher) GetWorkflowRuns(ctx context.Context, owner, repo, workflowID string, limit int) ([]model.WorkflowRun, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/runs", f.client.baseURL, owner, repo, workflowID)

	var raw struct {
		WorkflowRuns []model.WorkflowRun `json:"workflow_runs"`
	}
	if err := f.client.getJSON(ctx, "list_workflow_runs", url, &raw); err != nil {
		return nil, fmt.Errorf("failed to list workflow runs for %s/%s: %w", owner, repo, err)
	}

	runs := raw.WorkflowRuns
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}
