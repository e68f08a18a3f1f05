package agent

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/gitagu/internal/model"
)

func TestCanonicalAgentID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{name: "current ids pass through", id: AgentIDDevin, want: "devin"},
		{name: "copilot completions passes through", id: AgentIDGitHubCopilotCompletions, want: "github-copilot-completions"},
		{name: "legacy copilot id resolves", id: "github-copilot", want: "github-copilot-completions"},
		{name: "unrecognized ids pass through untouched", id: "some-new-agent", want: "some-new-agent"},
		{name: "empty id passes through", id: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalAgentID(tt.id))
		})
	}
}

func TestBuildAnalysisPrompt(t *testing.T) {
	req := AnalysisContext{
		Owner:   "microsoft",
		Repo:    "gitagu",
		AgentID: AgentIDCodexCLI,
		Snapshot: &model.RepositorySnapshot{
			FullName:      "microsoft/gitagu",
			Description:   "Unblock agents",
			Language:      "Python",
			Stars:         42,
			DefaultBranch: "main",
			Readme:        "# gitagu\nSome readme",
			Files:         []model.FileEntry{{Path: "main.py", Type: "blob"}},
		},
		Dependencies: []model.DependencyFile{
			{Filename: "requirements.txt", Language: "Python", Content: "fastapi\n"},
		},
	}

	prompt := buildAnalysisPrompt(req)

	assert.Contains(t, prompt, "microsoft/gitagu")
	assert.Contains(t, prompt, "codex-cli")
	assert.Contains(t, prompt, "Primary language: Python")
	assert.Contains(t, prompt, "requirements.txt (Python)")
	assert.Contains(t, prompt, "fastapi")
	assert.Contains(t, prompt, "# gitagu")
	assert.Contains(t, prompt, `"analysis"`)
	assert.Contains(t, prompt, `"setup_commands"`)
}

func TestBuildAnalysisPromptTruncatesReadme(t *testing.T) {
	req := AnalysisContext{
		AgentID: AgentIDDevin,
		Snapshot: &model.RepositorySnapshot{
			FullName: "o/r",
			Readme:   strings.Repeat("x", maxReadmeChars+500),
		},
	}

	prompt := buildAnalysisPrompt(req)
	assert.Contains(t, prompt, "(truncated)")
	assert.Less(t, len(prompt), maxReadmeChars+2000)
}

func TestBuildBreakdownPrompt(t *testing.T) {
	prompt := buildBreakdownPrompt("add dark mode to the settings page")
	assert.Contains(t, prompt, "add dark mode to the settings page")
	assert.Contains(t, prompt, `"tasks"`)
	assert.Contains(t, prompt, `"title"`)
	assert.Contains(t, prompt, `"description"`)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 100))
	long := truncate(strings.Repeat("a", 50), 10)
	assert.True(t, strings.HasPrefix(long, "aaaaaaaaaa"))
	assert.True(t, strings.HasSuffix(long, "(truncated)"))
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	// Each rune is 3 bytes; cutting mid-rune would leave invalid UTF-8
	s := strings.Repeat("日本語", 10)

	for max := 1; max < len(s); max++ {
		out := truncate(s, max)
		assert.True(t, utf8.ValidString(out), "cut at %d produced invalid UTF-8", max)
	}

	// The cut lands on the rune boundary at or below the requested max
	assert.Equal(t, "h\n... (truncated)", truncate("héllo wörld", 2))
}

func TestNewOpenAIBackend(t *testing.T) {
	_, err := NewOpenAIBackend("", "gpt-4o")
	require.ErrorIs(t, err, ErrAPIKeyNotSet)

	backend, err := NewOpenAIBackend("sk-test", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, backend.ModelName())

	backend, err = NewOpenAIBackend("sk-test", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", backend.ModelName())

	backend.SetTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, backend.timeout)
}
