package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxReadmeChars = 8000

const maxManifestChars = 4000

// buildAnalysisPrompt renders the snapshot into the prompt sent to the
// model. Oversized README and manifest bodies are truncated so a single
// huge file cannot blow the context window.
func buildAnalysisPrompt(req AnalysisContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the GitHub repository %s for onboarding the %s coding agent.\n\n", req.Snapshot.FullName, req.AgentID)
	fmt.Fprintf(&b, "Description: %s\n", req.Snapshot.Description)
	fmt.Fprintf(&b, "Primary language: %s\n", req.Snapshot.Language)
	fmt.Fprintf(&b, "Stars: %d\n", req.Snapshot.Stars)
	fmt.Fprintf(&b, "Default branch: %s\n", req.Snapshot.DefaultBranch)

	if len(req.Dependencies) > 0 {
		b.WriteString("\nDependency manifests:\n")
		for _, dep := range req.Dependencies {
			fmt.Fprintf(&b, "\n--- %s (%s) ---\n%s\n", dep.Filename, dep.Language, truncate(dep.Content, maxManifestChars))
		}
	}

	if len(req.Snapshot.Files) > 0 {
		fmt.Fprintf(&b, "\nThe repository contains %d tree entries.\n", len(req.Snapshot.Files))
	}

	if req.Snapshot.Readme != "" {
		fmt.Fprintf(&b, "\nREADME:\n%s\n", truncate(req.Snapshot.Readme, maxReadmeChars))
	}

	b.WriteString(`
Respond with a JSON object with exactly these keys:
  "analysis": a concise markdown analysis of the project, its stack and how to work on it
  "setup_commands": an object mapping setup step names to shell commands needed before the agent can work (may be empty)
`)

	return b.String()
}

// buildBreakdownPrompt renders a free-form user request into the task
// breakdown prompt
func buildBreakdownPrompt(request string) string {
	return fmt.Sprintf(`Break the following development request into discrete, actionable tasks.

Request: %s

Respond with a JSON object with exactly one key "tasks": an array of objects, each with "title" and "description" strings. Order tasks by the sequence they should be done in.`, request)
}

// truncate cuts s at a rune boundary so multi-byte characters in READMEs
// and manifests are never split into invalid sequences
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "\n... (truncated)"
}
