package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microsoft/gitagu/internal/metrics"
	"github.com/microsoft/gitagu/internal/model"
)

// newTestFetcher wires a fetcher to an httptest server standing in for the
// GitHub API. The caller owns the server lifecycle.
func newTestFetcher(t *testing.T, handler http.Handler) (*Fetcher, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(testConfig(server.URL), metrics.NewForTesting())
	require.NoError(t, err)

	return NewFetcher(client, metrics.NewForTesting()), server
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// treeFixture builds blob entries for the given paths
func treeFixture(paths ...string) []model.FileEntry {
	files := make([]model.FileEntry, 0, len(paths))
	for _, p := range paths {
		size := 64
		files = append(files, model.FileEntry{Path: p, Type: "blob", Size: &size})
	}
	return files
}

func TestGetRepositoryMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/microsoft/gitagu", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// stargazers_count arrives as a string here on purpose
		fmt.Fprint(w, `{
			"name": "gitagu",
			"full_name": "microsoft/gitagu",
			"description": "Unblock agents on your repo",
			"default_branch": "main",
			"stargazers_count": "1234"
		}`)
	})
	mux.HandleFunc("/repos/microsoft/nodesc", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"name": "nodesc",
			"full_name": "microsoft/nodesc",
			"description": null,
			"default_branch": "master",
			"stargazers_count": null
		}`)
	})

	fetcher, _ := newTestFetcher(t, mux)

	meta, err := fetcher.GetRepositoryMetadata(context.Background(), "microsoft", "gitagu")
	require.NoError(t, err)
	assert.Equal(t, "microsoft/gitagu", meta.FullName)
	assert.Equal(t, "Unblock agents on your repo", meta.Description)
	assert.Equal(t, "main", meta.DefaultBranch)
	assert.Equal(t, 1234, meta.Stars)

	meta, err = fetcher.GetRepositoryMetadata(context.Background(), "microsoft", "nodesc")
	require.NoError(t, err)
	assert.Equal(t, "No description available", meta.Description)
	assert.Equal(t, 0, meta.Stars)

	_, err = fetcher.GetRepositoryMetadata(context.Background(), "microsoft", "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestGetReadme(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/present/readme", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"content": %q, "encoding": "base64"}`, b64("# gitagu\n\nHello"))
	})
	mux.HandleFunc("/repos/o/broken/readme", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	fetcher, _ := newTestFetcher(t, mux)

	content, ok, err := fetcher.GetReadme(context.Background(), "o", "present")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "# gitagu\n\nHello", content)

	// A repository without a README is expected, not an error
	content, ok, err = fetcher.GetReadme(context.Background(), "o", "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, content)

	_, _, err = fetcher.GetReadme(context.Background(), "o", "broken")
	assert.Error(t, err)
}

func TestGetPrimaryLanguage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/mixed/languages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"Python": 52341, "TypeScript": 120944, "Shell": 312}`)
	})
	mux.HandleFunc("/repos/o/empty/languages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	})

	fetcher, _ := newTestFetcher(t, mux)

	lang, err := fetcher.GetPrimaryLanguage(context.Background(), "o", "mixed")
	require.NoError(t, err)
	assert.Equal(t, "TypeScript", lang)

	lang, err = fetcher.GetPrimaryLanguage(context.Background(), "o", "empty")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", lang)
}

func TestGetFileTree(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// A grab bag of the size shapes GitHub has been seen to return
		fmt.Fprint(w, `{"tree": [
			{"path": "README.md", "type": "blob", "size": 1024},
			{"path": "src", "type": "tree"},
			{"path": "src/main.py", "type": "blob", "size": "2048"},
			{"path": "src/util.py", "type": "blob", "size": 99.7},
			{"path": "weird.bin", "type": "blob", "size": "<UNSET>"}
		]}`)
	})

	fetcher, _ := newTestFetcher(t, mux)

	files, err := fetcher.GetFileTree(context.Background(), "o", "r", "main")
	require.NoError(t, err)
	require.Len(t, files, 5)

	bySize := map[string]*int{}
	for _, fe := range files {
		bySize[fe.Path] = fe.Size
	}

	require.NotNil(t, bySize["README.md"])
	assert.Equal(t, 1024, *bySize["README.md"])
	assert.Nil(t, bySize["src"], "directories never carry a size")
	require.NotNil(t, bySize["src/main.py"])
	assert.Equal(t, 2048, *bySize["src/main.py"])
	require.NotNil(t, bySize["src/util.py"])
	assert.Equal(t, 99, *bySize["src/util.py"])
	require.NotNil(t, bySize["weird.bin"])
	assert.Equal(t, 0, *bySize["weird.bin"])
}

func TestGetDependencyContentsPartialFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/contents/requirements.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"content": %q, "encoding": "base64"}`, b64("fastapi==0.110.0\n"))
	})
	mux.HandleFunc("/repos/o/r/contents/package.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	fetcher, _ := newTestFetcher(t, mux)

	files := treeFixture("requirements.txt", "package.json", "main.py")
	contents := fetcher.GetDependencyContents(context.Background(), "o", "r", "main", files)

	assert.Equal(t, map[string]string{"requirements.txt": "fastapi==0.110.0\n"}, contents)
}

func TestGetRepositorySnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"name": "r",
			"full_name": "o/r",
			"description": "demo",
			"default_branch": "main",
			"stargazers_count": 7
		}`)
	})
	mux.HandleFunc("/repos/o/r/readme", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"content": %q, "encoding": "base64"}`, b64("# r"))
	})
	mux.HandleFunc("/repos/o/r/languages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"Python": 100}`)
	})
	mux.HandleFunc("/repos/o/r/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"tree": [
			{"path": "requirements.txt", "type": "blob", "size": 17},
			{"path": "main.py", "type": "blob", "size": 100}
		]}`)
	})
	mux.HandleFunc("/repos/o/r/contents/requirements.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"content": %q, "encoding": "base64"}`, b64("requests\n"))
	})

	fetcher, _ := newTestFetcher(t, mux)

	snapshot, err := fetcher.GetRepositorySnapshot(context.Background(), "o", "r")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "o/r", snapshot.FullName)
	assert.Equal(t, "demo", snapshot.Description)
	assert.Equal(t, "Python", snapshot.Language)
	assert.Equal(t, 7, snapshot.Stars)
	assert.Equal(t, "# r", snapshot.Readme)
	assert.Len(t, snapshot.Files, 2)
	assert.Equal(t, map[string]string{"requirements.txt": "requests\n"}, snapshot.Dependencies)
}

func TestGetRepositorySnapshotNotFound(t *testing.T) {
	fetcher, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	snapshot, err := fetcher.GetRepositorySnapshot(context.Background(), "o", "missing")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestGetRepositorySnapshotDegraded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"name": "r",
			"full_name": "o/r",
			"description": "demo",
			"default_branch": "main",
			"stargazers_count": 7
		}`)
	})
	mux.HandleFunc("/repos/o/r/readme", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"content": %q, "encoding": "base64"}`, b64("# r"))
	})
	mux.HandleFunc("/repos/o/r/languages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"Python": 100}`)
	})
	mux.HandleFunc("/repos/o/r/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	fetcher, _ := newTestFetcher(t, mux)

	// Tree failure degrades the snapshot but is not fatal
	snapshot, err := fetcher.GetRepositorySnapshot(context.Background(), "o", "r")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "# r", snapshot.Readme)
	assert.Equal(t, "Python", snapshot.Language)
	assert.Empty(t, snapshot.Files)
	assert.Empty(t, snapshot.Dependencies)
}
