package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zapgate/zapgate/internal/core"
	"github.com/zapgate/zapgate/internal/domain/model"
	apperrors "github.com/zapgate/zapgate/internal/errors"
	"github.com/zapgate/zapgate/internal/poll"
)

const (
	defaultStableDiffusionBaseURL = "https://stablediffusionapi.com"
	stableDiffusionPath           = "/api/v4/dreambooth"
)

// StableDiffusionOptions groups dependencies for NewStableDiffusion.
type StableDiffusionOptions struct {
	// APIKey is injected into the request payload as the "key" field, which is
	// how the dreambooth API authenticates.
	APIKey string
	// BaseURL overrides the API root, mainly for tests.
	BaseURL string
	// Poll bounds the processing loop. Zero values take poll defaults.
	Poll poll.Config
	// HTTPClient is optional.
	HTTPClient *http.Client
	// Logger is optional.
	Logger *slog.Logger
}

// StableDiffusion executes image jobs against the dreambooth API. The API
// answers "processing" until the image is ready, so Execute re-submits the
// request until the status changes.
type StableDiffusion struct {
	apiKey  string
	baseURL string
	pollCfg poll.Config
	client  *http.Client
	logger  *slog.Logger
}

var _ core.BackendAdapter = (*StableDiffusion)(nil)

// NewStableDiffusion constructs the Stable Diffusion backend adapter.
func NewStableDiffusion(opts StableDiffusionOptions) (*StableDiffusion, error) {
	if opts.APIKey == "" {
		return nil, errors.New("stable diffusion api key is required")
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultStableDiffusionBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	pollCfg := opts.Poll
	pollCfg.Sanitize()

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("adapter", "stable_diffusion")
	}

	return &StableDiffusion{
		apiKey:  opts.APIKey,
		baseURL: baseURL,
		pollCfg: pollCfg,
		client:  client,
		logger:  logger,
	}, nil
}

// Service implements core.BackendAdapter.
func (a *StableDiffusion) Service() model.ServiceID {
	return model.ServiceStableDiffusion
}

// Execute submits the payload with the API key injected and repeats until the
// API stops reporting "processing".
func (a *StableDiffusion) Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	body, err := a.injectKey(payload)
	if err != nil {
		return nil, err
	}

	var result json.RawMessage
	err = poll.Until(ctx, a.pollCfg, func(ctx context.Context) (bool, error) {
		respBody, callErr := a.submit(ctx, body)
		if callErr != nil {
			return false, callErr
		}

		var peek struct {
			Status string `json:"status"`
		}
		if decodeErr := json.Unmarshal(respBody, &peek); decodeErr != nil {
			return false, fmt.Errorf("decode dreambooth response: %w", decodeErr)
		}
		if strings.EqualFold(peek.Status, "processing") {
			if a.logger != nil {
				a.logger.DebugContext(ctx, "image still processing")
			}
			return false, nil
		}

		result = respBody
		return true, nil
	})
	if errors.Is(err, poll.ErrTimeout) {
		return nil, apperrors.Wrap(
			apperrors.Timeout("image generation did not finish within the poll budget"), err)
	}
	if err != nil {
		return nil, fmt.Errorf("stable diffusion: %w", err)
	}
	return result, nil
}

// injectKey merges the API key into the client payload.
func (a *StableDiffusion) injectKey(payload json.RawMessage) ([]byte, error) {
	fields := map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("decode request payload: %w", err)
		}
	}
	fields["key"] = a.apiKey

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request payload: %w", err)
	}
	return body, nil
}

func (a *StableDiffusion) submit(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, a.baseURL+stableDiffusionPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build dreambooth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call dreambooth api: %w", err)
	}

	respBody, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read dreambooth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp, respBody)
	}
	return respBody, nil
}
