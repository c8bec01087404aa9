package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zapgate/zapgate/internal/core"
	"github.com/zapgate/zapgate/internal/domain/model"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAIOptions groups dependencies for NewOpenAI.
type OpenAIOptions struct {
	// APIKey authenticates against the chat-completions API.
	APIKey string
	// BaseURL overrides the API root, mainly for tests.
	BaseURL string
	// HTTPClient is optional.
	HTTPClient *http.Client
	// Logger is optional.
	Logger *slog.Logger
}

// OpenAI executes GPT jobs against the chat-completions API. The client's
// request payload is forwarded verbatim; the API response is the job result.
type OpenAI struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ core.BackendAdapter = (*OpenAI)(nil)

// NewOpenAI constructs the GPT backend adapter.
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("adapter", "openai")
	}

	return &OpenAI{
		apiKey:  opts.APIKey,
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}, nil
}

// Service implements core.BackendAdapter.
func (a *OpenAI) Service() model.ServiceID {
	return model.ServiceGPT
}

// Execute posts the payload to the chat-completions endpoint and returns the
// response body.
func (a *OpenAI) Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call completion api: %w", err)
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp, body)
	}
	if !json.Valid(body) {
		return nil, errors.New("completion api returned invalid json")
	}

	if a.logger != nil {
		a.logger.DebugContext(ctx, "completion finished", "bytes", len(body))
	}
	return body, nil
}
