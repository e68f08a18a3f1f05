package model

import (
	"time"
)

// AnalysisRequest represents the incoming request to analyze a repository
type AnalysisRequest struct {
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	AgentID string `json:"agent_id"`
}

// AnalysisResponse represents the final outcome of an analysis run.
// Error is set only when the run degraded; Analysis then carries a
// human-readable explanation instead of a genuine analysis.
type AnalysisResponse struct {
	AgentID       string            `json:"agent_id"`
	RepoName      string            `json:"repo_name"`
	Analysis      string            `json:"analysis"`
	SetupCommands map[string]string `json:"setup_commands,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// Progress statuses emitted by the analysis orchestrator
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// AnalysisProgressUpdate is a step-level progress event for one analysis run
type AnalysisProgressUpdate struct {
	Step               int            `json:"step"`
	StepName           string         `json:"step_name"`
	Status             string         `json:"status"`
	Message            string         `json:"message"`
	ProgressPercentage int            `json:"progress_percentage"`
	ElapsedTime        *float64       `json:"elapsed_time,omitempty"`
	Details            map[string]any `json:"details,omitempty"`
}

// RepositoryMetadata contains the basic repository fields returned by
// the metadata lookup
type RepositoryMetadata struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Stars         int    `json:"stars"`
}

// RepositorySnapshot is the normalized, point-in-time bundle of repository
// metadata, README, file tree and dependency contents. It is built once per
// fetch and never mutated afterwards.
type RepositorySnapshot struct {
	FullName      string            `json:"full_name"`
	Description   string            `json:"description"`
	Language      string            `json:"language"`
	Stars         int               `json:"stars"`
	DefaultBranch string            `json:"default_branch"`
	Readme        string            `json:"readme,omitempty"`
	Files         []FileEntry       `json:"files,omitempty"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
}

// FileEntry represents a single entry of the recursive repository tree.
// Size is never set for tree (directory) entries.
type FileEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob", "tree"
	Size *int   `json:"size,omitempty"`
}

// DependencyFile pairs a known dependency manifest with its content and
// the language label derived from the filename
type DependencyFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// TaskBreakdownRequest represents a free-form user request to split into tasks
type TaskBreakdownRequest struct {
	Request string `json:"request"`
}

// Task is a single unit of work produced by the task breakdown
type Task struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// TaskBreakdownResponse represents the agent's task breakdown
type TaskBreakdownResponse struct {
	Tasks []Task `json:"tasks"`
}

// DevinSessionRequest represents a request to create a Devin session
type DevinSessionRequest struct {
	APIKey     string `json:"api_key"`
	Prompt     string `json:"prompt"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	PlaybookID string `json:"playbook_id,omitempty"`
}

// DevinSessionResponse represents a created Devin session
type DevinSessionResponse struct {
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
}

// RunnerTokenResponse represents a GitHub Actions runner registration token
type RunnerTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WorkflowRun contains the subset of workflow run fields surfaced to callers
type WorkflowRun struct {
	ID         int64     `json:"id"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	CreatedAt  time.Time `json:"created_at"`
	HTMLURL    string    `json:"html_url"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// GitHubRepoResponse represents the GitHub API repository response.
// Numeric fields are decoded loosely because the upstream occasionally
// returns counts as strings or sentinel values; they are normalized
// before reaching any consumer.
type GitHubRepoResponse struct {
	Name            string  `json:"name"`
	FullName        string  `json:"full_name"`
	Description     *string `json:"description"`
	DefaultBranch   string  `json:"default_branch"`
	StargazersCount any     `json:"stargazers_count"`
}

// GitHubTreeEntry represents a raw file or directory in the Git tree
type GitHubTreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"` // "blob", "tree"
	SHA  string `json:"sha"`
	Size any    `json:"size,omitempty"`
}

// GitHubTreeResponse represents the GitHub API tree response
type GitHubTreeResponse struct {
	SHA       string            `json:"sha"`
	URL       string            `json:"url"`
	Tree      []GitHubTreeEntry `json:"tree"`
	Truncated bool              `json:"truncated"`
}

// GitHubContentResponse represents the GitHub API content response
type GitHubContentResponse struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     any    `json:"size"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}
