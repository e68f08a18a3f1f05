// Package analyzer sequences snapshot retrieval, dependency detection and
// agent invocation into a single analysis run with step-level progress
// reporting and per-stage failure isolation.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"github.com/microsoft/gitagu/internal/agent"
	"github.com/microsoft/gitagu/internal/deps"
	"github.com/microsoft/gitagu/internal/github"
	"github.com/microsoft/gitagu/internal/metrics"
	"github.com/microsoft/gitagu/internal/model"
)

// Stage names, in run order
const (
	StageFetchMetadata      = "fetch_metadata"
	StageFetchContent       = "fetch_content"
	StageDetectDependencies = "detect_dependencies"
	StageInvokeAgent        = "invoke_agent"
)

// ErrEmptyRequest indicates a task breakdown request with no content
var ErrEmptyRequest = errors.New("request text must not be empty")

// ProgressSink receives progress events for one analysis run. A nil sink
// discards events.
type ProgressSink func(model.AnalysisProgressUpdate)

// SnapshotSource is the slice of the GitHub fetcher the orchestrator
// consumes. *github.Fetcher implements it.
type SnapshotSource interface {
	GetRepositoryMetadata(ctx context.Context, owner, repo string) (*model.RepositoryMetadata, error)
	GetReadme(ctx context.Context, owner, repo string) (string, bool, error)
	GetPrimaryLanguage(ctx context.Context, owner, repo string) (string, error)
	GetFileTree(ctx context.Context, owner, repo, branch string) ([]model.FileEntry, error)
	GetDependencyContents(ctx context.Context, owner, repo, ref string, files []model.FileEntry) map[string]string
}

var _ SnapshotSource = (*github.Fetcher)(nil)

// Orchestrator runs analysis requests against a snapshot source and an
// agent backend. It holds no per-run state; independent runs execute fully
// in parallel.
type Orchestrator struct {
	source  SnapshotSource
	backend agent.Backend
	metrics *metrics.Metrics
}

// New creates an Orchestrator
func New(source SnapshotSource, backend agent.Backend, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		source:  source,
		backend: backend,
		metrics: m,
	}
}

// progressEmitter tracks the event ordering invariants for one run: step
// indices strictly increase, percentages never decrease, and nothing is
// emitted after the terminal event.
type progressEmitter struct {
	sink     ProgressSink
	start    time.Time
	step     int
	pct      int
	terminal bool
}

func newProgressEmitter(sink ProgressSink) *progressEmitter {
	return &progressEmitter{sink: sink, start: time.Now()}
}

func (e *progressEmitter) emit(stepName, status, message string, pct int, details map[string]any) {
	if e.terminal {
		return
	}
	if status == model.StatusFailed {
		e.terminal = true
	}
	if pct < e.pct {
		pct = e.pct
	}
	e.pct = pct
	e.step++

	if e.sink == nil {
		return
	}

	elapsed := time.Since(e.start).Seconds()
	e.sink(model.AnalysisProgressUpdate{
		Step:               e.step,
		StepName:           stepName,
		Status:             status,
		Message:            message,
		ProgressPercentage: pct,
		ElapsedTime:        &elapsed,
		Details:            details,
	})
}

// finish marks the run terminal after its final completed event
func (e *progressEmitter) finish() {
	e.terminal = true
}

// RunAnalysis executes the full analysis pipeline for one repository. It
// always returns a well-formed response: stage failures populate the Error
// field and an explanatory Analysis text instead of propagating.
func (o *Orchestrator) RunAnalysis(ctx context.Context, req model.AnalysisRequest, sink ProgressSink) *model.AnalysisResponse {
	runID := uuid.NewString()
	repoName := req.Owner + "/" + req.Repo
	log := logger.WithFields(logger.Fields{
		"run_id":   runID,
		"repo":     repoName,
		"agent_id": req.AgentID,
	})

	resp := &model.AnalysisResponse{
		AgentID:  req.AgentID,
		RepoName: repoName,
	}

	emitter := newProgressEmitter(sink)
	log.Info("starting analysis run")

	emitter.emit(StageFetchMetadata, model.StatusPending, "Analysis queued", 0, nil)

	// Stage 1: repository metadata. Failure here is terminal; the agent
	// is never invoked.
	emitter.emit(StageFetchMetadata, model.StatusInProgress, "Fetching repository metadata", 5, nil)
	stageStart := time.Now()

	meta, err := o.source.GetRepositoryMetadata(ctx, req.Owner, req.Repo)
	o.metrics.RecordStageDuration(StageFetchMetadata, time.Since(stageStart).Seconds())
	if err != nil {
		if github.IsNotFound(err) {
			log.Warn("repository not found")
			emitter.emit(StageFetchMetadata, model.StatusFailed, "Repository not found", 5, nil)
			resp.Analysis = fmt.Sprintf("Repository %s not found. Check that the owner and repository name are correct and that the repository is accessible.", repoName)
			resp.Error = "repository not found"
		} else {
			log.WithError(err).Error("metadata fetch failed")
			emitter.emit(StageFetchMetadata, model.StatusFailed, "Failed to fetch repository metadata", 5, nil)
			resp.Analysis = fmt.Sprintf("Error analyzing repository %s: %v", repoName, err)
			resp.Error = err.Error()
		}
		o.metrics.RecordAnalysisRun(req.AgentID, model.StatusFailed)
		return resp
	}
	emitter.emit(StageFetchMetadata, model.StatusCompleted, "Repository metadata fetched", 25, map[string]any{
		"full_name":      meta.FullName,
		"default_branch": meta.DefaultBranch,
		"stars":          meta.Stars,
	})

	// Stage 2: README, language and tree, fetched concurrently. These are
	// individually optional; failures degrade the snapshot but never
	// terminate the run.
	emitter.emit(StageFetchContent, model.StatusInProgress, "Downloading repository content", 30, nil)
	stageStart = time.Now()

	snapshot, degraded := o.fetchContent(ctx, req.Owner, req.Repo, meta, log)
	o.metrics.RecordStageDuration(StageFetchContent, time.Since(stageStart).Seconds())

	contentDetails := map[string]any{
		"readme":     snapshot.Readme != "",
		"file_count": len(snapshot.Files),
	}
	if len(degraded) > 0 {
		contentDetails["degraded"] = degraded
	}
	emitter.emit(StageFetchContent, model.StatusCompleted, "Repository content downloaded", 60, contentDetails)

	// Stage 3: dependency detection, purely local
	emitter.emit(StageDetectDependencies, model.StatusInProgress, "Detecting dependencies", 65, nil)
	stageStart = time.Now()

	detected := deps.Detect(snapshot.Files, snapshot.Dependencies)
	languages := make([]string, 0, len(detected))
	for _, d := range detected {
		languages = append(languages, d.Language)
		o.metrics.RecordDependencyDetected(d.Language)
	}
	o.metrics.RecordStageDuration(StageDetectDependencies, time.Since(stageStart).Seconds())

	emitter.emit(StageDetectDependencies, model.StatusCompleted,
		fmt.Sprintf("Detected %d dependency manifests", len(detected)), 75,
		map[string]any{"languages": languages})

	// Stage 4: agent invocation. Failure terminates the analysis but the
	// response is still well-formed.
	emitter.emit(StageInvokeAgent, model.StatusInProgress, "Running agent analysis", 80, nil)
	stageStart = time.Now()

	out, err := o.backend.AnalyzeRepository(ctx, agent.AnalysisContext{
		Owner:        req.Owner,
		Repo:         req.Repo,
		AgentID:      req.AgentID,
		Snapshot:     snapshot,
		Dependencies: detected,
	})
	o.metrics.RecordStageDuration(StageInvokeAgent, time.Since(stageStart).Seconds())
	if err != nil {
		log.WithError(err).Error("agent invocation failed")
		o.metrics.RecordAgentCall("analyze_repository", "error")
		emitter.emit(StageInvokeAgent, model.StatusFailed, "Agent analysis failed", 80, nil)
		resp.Analysis = fmt.Sprintf("Error analyzing repository %s: %v", repoName, err)
		resp.Error = err.Error()
		o.metrics.RecordAnalysisRun(req.AgentID, model.StatusFailed)
		return resp
	}
	o.metrics.RecordAgentCall("analyze_repository", "ok")

	resp.Analysis = out.Analysis
	resp.SetupCommands = out.SetupCommands

	emitter.emit(StageInvokeAgent, model.StatusCompleted, "Analysis complete", 100, nil)
	emitter.finish()

	o.metrics.RecordAnalysisRun(req.AgentID, model.StatusCompleted)
	log.Info("analysis run completed")

	return resp
}

// fetchContent assembles the snapshot for one run. README, language and
// tree fetches run concurrently; dependency contents follow once the tree
// has settled. The returned slice names the fetches that failed.
func (o *Orchestrator) fetchContent(ctx context.Context, owner, repo string, meta *model.RepositoryMetadata, log *logger.Entry) (*model.RepositorySnapshot, []string) {
	snapshot := &model.RepositorySnapshot{
		FullName:      meta.FullName,
		Description:   meta.Description,
		Language:      "Unknown",
		Stars:         meta.Stars,
		DefaultBranch: meta.DefaultBranch,
	}

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
		readme, readmeOK, readmeErr = o.source.GetReadme(ctx, owner, repo)
	}()

	go func() {
		defer wg.Done()
		language, langErr = o.source.GetPrimaryLanguage(ctx, owner, repo)
	}()

	go func() {
		defer wg.Done()
		files, treeErr = o.source.GetFileTree(ctx, owner, repo, meta.DefaultBranch)
	}()

	wg.Wait()

	var degraded []string
	if readmeErr != nil {
		log.WithError(readmeErr).Warn("readme fetch failed, continuing without it")
		degraded = append(degraded, "readme")
	} else if readmeOK {
		snapshot.Readme = readme
	}

	if langErr != nil {
		log.WithError(langErr).Warn("language fetch failed, continuing without it")
		degraded = append(degraded, "language")
	} else if language != "" {
		snapshot.Language = language
	}

	if treeErr != nil {
		log.WithError(treeErr).Warn("tree fetch failed, continuing without it")
		degraded = append(degraded, "tree")
	} else {
		snapshot.Files = files
	}

	if len(snapshot.Files) > 0 {
		snapshot.Dependencies = o.source.GetDependencyContents(ctx, owner, repo, meta.DefaultBranch, snapshot.Files)
	}

	return snapshot, degraded
}

// BreakdownUserRequest splits a free-form request into tasks. The request
// is validated before the agent backend is ever reached.
func (o *Orchestrator) BreakdownUserRequest(ctx context.Context, request string) (*model.TaskBreakdownResponse, error) {
	if strings.TrimSpace(request) == "" {
		return nil, ErrEmptyRequest
	}

	breakdown, err := o.backend.BreakdownUserRequest(ctx, request)
	if err != nil {
		o.metrics.RecordAgentCall("breakdown_user_request", "error")
		return nil, fmt.Errorf("task breakdown failed: %w", err)
	}

	o.metrics.RecordAgentCall("breakdown_user_request", "ok")
	return breakdown, nil
}
