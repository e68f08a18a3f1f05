// Package agent defines the pluggable analysis backend contract and its
// OpenAI-based default implementation.
package agent

import (
	"context"

	"github.com/microsoft/gitagu/internal/model"
)

// Known agent identifiers
const (
	AgentIDGitHubCopilotCompletions = "github-copilot-completions"
	AgentIDGitHubCopilotAgent       = "github-copilot-agent"
	AgentIDDevin                    = "devin"
	AgentIDCodexCLI                 = "codex-cli"
	AgentIDSREAgent                 = "sreagent"
)

// LegacyAgentIDs maps retired agent identifiers to their replacements
var LegacyAgentIDs = map[string]string{
	"github-copilot": AgentIDGitHubCopilotCompletions,
}

// CanonicalAgentID resolves legacy agent identifiers to their current form
func CanonicalAgentID(id string) string {
	if canonical, ok := LegacyAgentIDs[id]; ok {
		return canonical
	}
	return id
}

// AnalysisContext carries everything the backend needs to analyze one
// repository: the normalized snapshot plus the detected manifests.
type AnalysisContext struct {
	Owner        string
	Repo         string
	AgentID      string
	Snapshot     *model.RepositorySnapshot
	Dependencies []model.DependencyFile
}

// AnalysisOutput is the backend's answer for one repository
type AnalysisOutput struct {
	Analysis      string
	SetupCommands map[string]string
}

// Backend is the analysis/task-breakdown engine the orchestrator delegates
// to. Implementations must be safe for concurrent use.
type Backend interface {
	AnalyzeRepository(ctx context.Context, req AnalysisContext) (*AnalysisOutput, error)
	BreakdownUserRequest(ctx context.Context, request string) (*model.TaskBreakdownResponse, error)
}
