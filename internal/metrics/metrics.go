package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the gitagu backend
type Metrics struct {
	// Request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// GitHub API metrics
	GitHubAPICallsTotal  *prometheus.CounterVec
	GitHubRateLimitUsed  prometheus.Gauge
	GitHubRateLimitLimit prometheus.Gauge

	// Snapshot metrics
	SnapshotFetchesTotal *prometheus.CounterVec
	ErrorsTotal          *prometheus.CounterVec

	// Analysis metrics
	AnalysisRunsTotal     *prometheus.CounterVec
	AnalysisStageDuration *prometheus.HistogramVec
	AgentCallsTotal       *prometheus.CounterVec

	// Dependency detection metrics
	DependencyFilesDetected *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registry
func New() *Metrics {
	return newWithFactory(promauto.With(prometheus.DefaultRegisterer))
}

// NewForTesting creates metrics on a private registry so tests never
// collide on duplicate registrations
func NewForTesting() *Metrics {
	return newWithFactory(promauto.With(prometheus.NewRegistry()))
}

func newWithFactory(factory promauto.Factory) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitagu_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gitagu_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		GitHubAPICallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitagu_github_api_calls_total",
				Help: "Total number of GitHub API calls made",
			},
			[]string{"endpoint", "status"},
		),

		GitHubRateLimitUsed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gitagu_github_rate_limit_used",
				Help: "Number of GitHub API rate limit requests remaining",
			},
		),

		GitHubRateLimitLimit: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "gitagu_github_rate_limit_limit",
				Help: "GitHub API rate limit maximum",
			},
		),

		SnapshotFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitagu_snapshot_fetches_total",
				Help: "Total number of repository snapshot fetches",
			},
			[]string{"result"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitagu_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type", "repo_owner", "repo_name"},
		),

		AnalysisRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitagu_analysis_runs_total",
				Help: "Total number of analysis runs",
			},
			[]string{"agent_id", "status"},
		),

		AnalysisStageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gitagu_analysis_stage_duration_seconds",
				Help:    "Duration of individual analysis stages in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),

		AgentCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitagu_agent_calls_total",
				Help: "Total number of agent backend invocations",
			},
			[]string{"operation", "status"},
		),

		DependencyFilesDetected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitagu_dependency_files_detected_total",
				Help: "Total number of dependency manifests detected",
			},
			[]string{"language"},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records the duration of an HTTP request
func (m *Metrics) RecordHTTPDuration(method, path string, duration float64) {
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordGitHubAPICall records a GitHub API call
func (m *Metrics) RecordGitHubAPICall(endpoint, status string) {
	m.GitHubAPICallsTotal.WithLabelValues(endpoint, status).Inc()
}

// UpdateGitHubRateLimit updates the GitHub rate limit gauges
func (m *Metrics) UpdateGitHubRateLimit(used, limit int) {
	m.GitHubRateLimitUsed.Set(float64(limit - used))
	m.GitHubRateLimitLimit.Set(float64(limit))
}

// RecordSnapshotFetch records the outcome of a snapshot fetch
func (m *Metrics) RecordSnapshotFetch(result string) {
	m.SnapshotFetchesTotal.WithLabelValues(result).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, repoOwner, repoName string) {
	m.ErrorsTotal.WithLabelValues(errorType, repoOwner, repoName).Inc()
}

// RecordAnalysisRun records a finished analysis run
func (m *Metrics) RecordAnalysisRun(agentID, status string) {
	m.AnalysisRunsTotal.WithLabelValues(agentID, status).Inc()
}

// RecordStageDuration records the duration of an analysis stage
func (m *Metrics) RecordStageDuration(stage string, duration float64) {
	m.AnalysisStageDuration.WithLabelValues(stage).Observe(duration)
}

// RecordAgentCall records an agent backend invocation
func (m *Metrics) RecordAgentCall(operation, status string) {
	m.AgentCallsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDependencyDetected records a detected dependency manifest
func (m *Metrics) RecordDependencyDetected(language string) {
	m.DependencyFilesDetected.WithLabelValues(language).Inc()
}
