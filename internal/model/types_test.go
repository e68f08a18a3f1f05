package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisResponseOmitsEmptyFields(t *testing.T) {
	resp := AnalysisResponse{
		AgentID:  "devin",
		RepoName: "o/r",
		Analysis: "All good.",
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	// Clients key off the presence of "error" to detect failed runs
	assert.NotContains(t, string(data), `"error"`)
	assert.NotContains(t, string(data), `"setup_commands"`)

	resp.Error = "boom"
	resp.SetupCommands = map[string]string{"install": "make"}
	data, err = json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"error":"boom"`)
	assert.Contains(t, string(data), `"setup_commands"`)
}

func TestAnalysisProgressUpdateWireFormat(t *testing.T) {
	elapsed := 1.5
	update := AnalysisProgressUpdate{
		Step:               2,
		StepName:           "fetch_content",
		Status:             StatusInProgress,
		Message:            "Downloading repository content",
		ProgressPercentage: 30,
		ElapsedTime:        &elapsed,
	}

	data, err := json.Marshal(update)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(2), decoded["step"])
	assert.Equal(t, "fetch_content", decoded["step_name"])
	assert.Equal(t, "in_progress", decoded["status"])
	assert.Equal(t, float64(30), decoded["progress_percentage"])
	assert.Equal(t, 1.5, decoded["elapsed_time"])
	assert.NotContains(t, decoded, "details")
}

func TestFileEntrySizeIsOptional(t *testing.T) {
	size := 128
	blob := FileEntry{Path: "main.py", Type: "blob", Size: &size}
	dir := FileEntry{Path: "src", Type: "tree"}

	blobJSON, err := json.Marshal(blob)
	require.NoError(t, err)
	assert.Contains(t, string(blobJSON), `"size":128`)

	dirJSON, err := json.Marshal(dir)
	require.NoError(t, err)
	assert.NotContains(t, string(dirJSON), "size")
}
