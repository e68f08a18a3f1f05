package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the gitagu backend service
type Config struct {
	// Server settings
	Port string
	Host string

	// GitHub settings
	GitHubBaseURL   string
	GitHubToken     string // Personal Access Token, optional
	GitHubAppID     string // GitHub App ID
	GitHubAppKey    string // GitHub App private key
	GitHubInstallID string // GitHub App installation ID

	// Agent backend settings
	OpenAIAPIKey   string
	ModelName      string
	AgentTimeoutMS int

	// Devin integration
	DevinBaseURL string

	// Rate limiting
	APIRateLimitThreshold int

	// Timeouts and retries
	FetchTimeoutMS     int
	RetryMaxAttempts   int
	RetryBackoffBaseMS int

	// HTTP surface
	CORSOrigins []string

	// Observability
	LogLevel    string
	MetricsPath string

	// Development
	Environment string
}

// Load creates a new Config by reading from the environment. A local .env
// file is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Default values
		Port:                  getEnvOrDefault("PORT", "8000"),
		Host:                  getEnvOrDefault("HOST", "0.0.0.0"),
		GitHubBaseURL:         getEnvOrDefault("GITHUB_BASE_URL", "https://api.github.com"),
		ModelName:             getEnvOrDefault("MODEL_NAME", "gpt-4o"),
		AgentTimeoutMS:        getEnvAsIntOrDefault("AGENT_TIMEOUT_MS", 120000),
		DevinBaseURL:          getEnvOrDefault("DEVIN_BASE_URL", "https://api.devin.ai/v1"),
		APIRateLimitThreshold: getEnvAsIntOrDefault("API_RATE_LIMIT_THRESHOLD", 100),
		FetchTimeoutMS:        getEnvAsIntOrDefault("FETCH_TIMEOUT_MS", 30000),
		RetryMaxAttempts:      getEnvAsIntOrDefault("RETRY_MAX_ATTEMPTS", 3),
		RetryBackoffBaseMS:    getEnvAsIntOrDefault("RETRY_BACKOFF_MS_BASE", 1000),
		CORSOrigins:           getEnvAsListOrDefault("CORS_ORIGINS", defaultCORSOrigins()),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
		MetricsPath:           getEnvOrDefault("METRICS_PATH", "/metrics"),
		Environment:           getEnvOrDefault("ENVIRONMENT", "development"),
	}

	// Optional credentials
	cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	cfg.GitHubAppID = os.Getenv("GITHUB_APP_ID")
	cfg.GitHubAppKey = os.Getenv("GITHUB_APP_KEY")
	cfg.GitHubInstallID = os.Getenv("GITHUB_INSTALL_ID")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid. GitHub credentials are
// intentionally not required: without them the service falls back to an
// anonymous client with tighter upstream rate limits.
func (c *Config) Validate() error {
	if c.APIRateLimitThreshold <= 0 {
		return fmt.Errorf("API_RATE_LIMIT_THRESHOLD must be greater than 0")
	}

	if c.FetchTimeoutMS <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT_MS must be greater than 0")
	}

	if c.RetryMaxAttempts < 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be non-negative")
	}

	if c.RetryBackoffBaseMS <= 0 {
		return fmt.Errorf("RETRY_BACKOFF_MS_BASE must be greater than 0")
	}

	if c.AgentTimeoutMS <= 0 {
		return fmt.Errorf("AGENT_TIMEOUT_MS must be greater than 0")
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("CORS_ORIGINS must not be empty")
	}

	return nil
}

// GetFetchTimeout returns the fetch timeout as a duration
func (c *Config) GetFetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// GetRetryBackoffBase returns the retry backoff base as a duration
func (c *Config) GetRetryBackoffBase() time.Duration {
	return time.Duration(c.RetryBackoffBaseMS) * time.Millisecond
}

// GetAgentTimeout returns the agent invocation timeout as a duration
func (c *Config) GetAgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutMS) * time.Millisecond
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HasGitHubApp returns true if GitHub App credentials are configured
func (c *Config) HasGitHubApp() bool {
	return c.GitHubAppID != "" && c.GitHubAppKey != "" && c.GitHubInstallID != ""
}

// HasGitHubAuth returns true if any GitHub authentication is configured
func (c *Config) HasGitHubAuth() bool {
	return c.GitHubToken != "" || c.HasGitHubApp()
}

func defaultCORSOrigins() []string {
	return []string{
		"http://localhost:5173",
		"https://gitagu.com",
		"https://agunblock.com",
		"*",
	}
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
