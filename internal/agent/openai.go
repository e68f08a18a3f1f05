package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/microsoft/gitagu/internal/model"
)

const (
	// DefaultModel is the model used when none is configured
	DefaultModel = "gpt-4o"

	// DefaultTimeout bounds a single backend invocation
	DefaultTimeout = 120 * time.Second

	// MaxRetries is the retry budget for rate-limited calls
	MaxRetries = 3

	// BaseBackoff is the starting backoff between retries
	BaseBackoff = 2 * time.Second

	// MaxBackoff caps the backoff between retries
	MaxBackoff = 32 * time.Second
)

// ErrAPIKeyNotSet indicates the OpenAI API key is missing
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

// ErrMaxRetriesExceeded indicates the retry budget was exhausted
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// OpenAIBackend implements Backend on top of the OpenAI chat completions API
type OpenAIBackend struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIBackend creates a backend with the given API key and model.
// An empty model selects DefaultModel.
func NewOpenAIBackend(apiKey, modelName string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	return &OpenAIBackend{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   modelName,
		timeout: DefaultTimeout,
	}, nil
}

// SetTimeout overrides the per-invocation timeout
func (b *OpenAIBackend) SetTimeout(timeout time.Duration) {
	b.timeout = timeout
}

// ModelName returns the configured model name
func (b *OpenAIBackend) ModelName() string {
	return b.model
}

// AnalyzeRepository produces an analysis and setup commands for a snapshot
func (b *OpenAIBackend) AnalyzeRepository(ctx context.Context, req AnalysisContext) (*AnalysisOutput, error) {
	content, err := b.completeJSON(ctx, buildAnalysisPrompt(req))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Analysis      string            `json:"analysis"`
		SetupCommands map[string]string `json:"setup_commands"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	if parsed.Analysis == "" {
		return nil, fmt.Errorf("analysis response missing analysis text")
	}

	return &AnalysisOutput{
		Analysis:      parsed.Analysis,
		SetupCommands: parsed.SetupCommands,
	}, nil
}

// BreakdownUserRequest splits a free-form request into discrete tasks
func (b *OpenAIBackend) BreakdownUserRequest(ctx context.Context, request string) (*model.TaskBreakdownResponse, error) {
	content, err := b.completeJSON(ctx, buildBreakdownPrompt(request))
	if err != nil {
		return nil, err
	}

	var parsed model.TaskBreakdownResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse breakdown response: %w", err)
	}
	if len(parsed.Tasks) == 0 {
		return nil, fmt.Errorf("breakdown response contained no tasks")
	}

	return &parsed, nil
}

// completeJSON runs one JSON-mode chat completion with backoff on rate
// limit errors
func (b *OpenAIBackend) completeJSON(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	}

	var lastErr error
	backoff := BaseBackoff

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > MaxBackoff {
					backoff = MaxBackoff
				}
			}
		}

		completion, err := b.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}

		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

var _ Backend = (*OpenAIBackend)(nil)
