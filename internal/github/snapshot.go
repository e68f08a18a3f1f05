package github

import (
	"context"
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"

	"github.com/microsoft/gitagu/internal/deps"
	"github.com/microsoft/gitagu/internal/metrics"
	"github.com/microsoft/gitagu/internal/model"
)

// noDescription is substituted when a repository has no description set
const noDescription = "No description available"

// unknownLanguage is substituted when no language information is available
const unknownLanguage = "Unknown"

// Fetcher exposes the normalized repository queries the analysis pipeline
// needs. Every operation is independently fallible; GetRepositorySnapshot
// composes them and degrades gracefully when optional data is missing.
type Fetcher struct {
	client  *Client
	metrics *metrics.Metrics
}

// NewFetcher creates a Fetcher backed by the given client
func NewFetcher(client *Client, m *metrics.Metrics) *Fetcher {
	return &Fetcher{client: client, metrics: m}
}

// GetRepositoryMetadata fetches basic repository information. A missing
// repository yields ErrNotFound; other upstream failures yield an
// UpstreamError.
func (f *Fetcher) GetRepositoryMetadata(ctx context.Context, owner, repo string) (*model.RepositoryMetadata, error) {
	url := fmt.Sprintf("%s/repos/%s/%s", f.client.baseURL, owner, repo)

	var raw model.GitHubRepoResponse
	if err := f.client.getJSON(ctx, "get_repo", url, &raw); err != nil {
		return nil, fmt.Errorf("failed to get repository metadata for %s/%s: %w", owner, repo, err)
	}

	description := noDescription
	if raw.Description != nil && *raw.Description != "" {
		description = *raw.Description
	}

	return &model.RepositoryMetadata{
		Name:          raw.Name,
		FullName:      raw.FullName,
		Description:   description,
		DefaultBranch: raw.DefaultBranch,
		Stars:         NormalizeInt(raw.StargazersCount, 0),
	}, nil
}

// GetReadme fetches the repository README. A repository without a README is
// not an error: ok is false and err is nil. Other upstream failures are
// returned as errors.
func (f *Fetcher) GetReadme(ctx context.Context, owner, repo string) (content string, ok bool, err error) {
	url := fmt.Sprintf("%s/repos/%s/%s/readme", f.client.baseURL, owner, repo)

	var raw model.GitHubContentResponse
	if err := f.client.getJSON(ctx, "get_readme", url, &raw); err != nil {
		if IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get README for %s/%s: %w", owner, repo, err)
	}

	decoded, err := decodeContent(raw.Content, raw.Encoding)
	if err != nil {
		return "", false, fmt.Errorf("failed to decode README for %s/%s: %w", owner, repo, err)
	}

	return decoded, true, nil
}

// GetPrimaryLanguage determines the repository's dominant language from the
// languages endpoint. Returns "Unknown" when no language data exists.
func (f *Fetcher) GetPrimaryLanguage(ctx context.Context, owner, repo string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/languages", f.client.baseURL, owner, repo)

	var languages map[string]int64
	if err := f.client.getJSON(ctx, "get_languages", url, &languages); err != nil {
		return "", fmt.Errorf("failed to get languages for %s/%s: %w", owner, repo, err)
	}

	primary := unknownLanguage
	var best int64 = -1
	for lang, bytes := range languages {
		if bytes > best {
			primary = lang
			best = bytes
		}
	}

	return primary, nil
}

// GetFileTree fetches the recursive file tree for a branch. Entry sizes
// pass through NormalizeInt; directory entries never carry a size.
func (f *Fetcher) GetFileTree(ctx context.Context, owner, repo, branch string) ([]model.FileEntry, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", f.client.baseURL, owner, repo, branch)

	var raw model.GitHubTreeResponse
	if err := f.client.getJSON(ctx, "get_tree", url, &raw); err != nil {
		f.metrics.RecordError("tree_fetch_failed", owner, repo)
		return nil, fmt.Errorf("failed to get file tree for %s/%s: %w", owner, repo, err)
	}

	files := make([]model.FileEntry, 0, len(raw.Tree))
	for _, entry := range raw.Tree {
		fe := model.FileEntry{
			Path: entry.Path,
			Type: entry.Type,
		}
		if entry.Type == "blob" {
			size := NormalizeInt(entry.Size, 0)
			fe.Size = &size
		}
		files = append(files, fe)
	}

	logger.WithFields(logger.Fields{
		"repo":  owner + "/" + repo,
		"files": len(files),
	}).Debug("fetched repository tree")

	return files, nil
}

// GetFileContent fetches and decodes the content of a single file
func (f *Fetcher) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", f.client.baseURL, owner, repo, path, ref)

	var raw model.GitHubContentResponse
	if err := f.client.getJSON(ctx, "get_content", url, &raw); err != nil {
		return "", fmt.Errorf("failed to get content for %s: %w", path, err)
	}

	return decodeContent(raw.Content, raw.Encoding)
}

// GetDependencyContents fetches the content of every known dependency
// manifest present in the tree. The manifests are fetched concurrently;
// a failure for one file is logged and skipped so the others still land.
func (f *Fetcher) GetDependencyContents(ctx context.Context, owner, repo, ref string, files []model.FileEntry) map[string]string {
	paths := deps.ManifestPaths(files)
	if len(paths) == 0 {
		return map[string]string{}
	}

	type fetchResult struct {
		path    string
		content string
		err     error
	}

	results := make(chan fetchResult, len(paths))
	var wg sync.WaitGroup

	for _, p := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			content, err := f.GetFileContent(ctx, owner, repo, p, ref)
			results <- fetchResult{path: p, content: content, err: err}
		}(p)
	}

	wg.Wait()
	close(results)

	contents := make(map[string]string, len(paths))
	for r := range results {
		if r.err != nil {
			logger.WithError(r.err).WithFields(logger.Fields{
				"repo": owner + "/" + repo,
				"path": r.path,
			}).Warn("skipping dependency manifest")
			f.metrics.RecordError("dependency_fetch_failed", owner, repo)
			continue
		}
		contents[r.path] = r.content
	}

	return contents
}

// GetRepositorySnapshot composes the individual queries into one snapshot.
// A missing repository yields (nil, nil). A metadata failure of any other
// kind propagates. README, language, tree and dependency fetches are
// attempted concurrently and individually optional: their absence degrades
// the snapshot but never fails the call.
func (f *Fetcher) GetRepositorySnapshot(ctx context.Context, owner, repo string) (*model.RepositorySnapshot, error) {
	meta, err := f.GetRepositoryMetadata(ctx, owner, repo)
	if err != nil {
		if IsNotFound(err) {
			f.metrics.RecordSnapshotFetch("not_found")
			return nil, nil
		}
		f.metrics.RecordSnapshotFetch("error")
		return nil, err
	}

	snapshot := &model.RepositorySnapshot{
		FullName:      meta.FullName,
		Description:   meta.Description,
		Language:      unknownLanguage,
		Stars:         meta.Stars,
		DefaultBranch: meta.DefaultBranch,
	}

	log := logger.WithField("repo", owner+"/"+repo)

	var (
		readme    string
		readmeOK  bool
		language  string
		files     []model.FileEntry
		readmeErr error
		langErr   error
		treeErr   error
	)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		readme, readmeOK, readmeErr = f.GetReadme(ctx, owner, repo)
	}()

	go func() {
		defer wg.Done()
		language, langErr = f.GetPrimaryLanguage(ctx, owner, repo)
	}()

	go func() {
		defer wg.Done()
		files, treeErr = f.GetFileTree(ctx, owner, repo, meta.DefaultBranch)
	}()

	wg.Wait()

	degraded := false
	if readmeErr != nil {
		log.WithError(readmeErr).Warn("readme fetch failed")
		degraded = true
	} else if readmeOK {
		snapshot.Readme = readme
	}

	if langErr != nil {
		log.WithError(langErr).Warn("language fetch failed")
		degraded = true
	} else {
		snapshot.Language = language
	}

	if treeErr != nil {
		log.WithError(treeErr).Warn("tree fetch failed")
		degraded = true
	} else {
		snapshot.Files = files
	}

	if len(snapshot.Files) > 0 {
		snapshot.Dependencies = f.GetDependencyContents(ctx, owner, repo, meta.DefaultBranch, snapshot.Files)
	}

	if degraded {
		f.metrics.RecordSnapshotFetch("degraded")
	} else {
		f.metrics.RecordSnapshotFetch("ok")
	}

	return snapshot, nil
}
