package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapgate/zapgate/internal/domain/model"
	apperrors "github.com/zapgate/zapgate/internal/errors"
	"github.com/zapgate/zapgate/internal/poll"
)

func fastPoll(attempts int) poll.Config {
	return poll.Config{Attempts: attempts, Interval: time.Millisecond}
}

func TestStableDiffusionExecutePollsUntilReady(t *testing.T) {
	var calls int
	var gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v4/dreambooth", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotKey, _ = body["key"].(string)

		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls < 3 {
			_, _ = w.Write([]byte(`{"status": "processing"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status": "success", "output": ["https://img.example/1.png"]}`))
	}))
	t.Cleanup(srv.Close)

	adapter, err := NewStableDiffusion(StableDiffusionOptions{
		APIKey:     "sd-key",
		BaseURL:    srv.URL,
		Poll:       fastPoll(10),
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	assert.Equal(t, model.ServiceStableDiffusion, adapter.Service())

	result, err := adapter.Execute(context.Background(), json.RawMessage(`{"prompt": "a cat"}`))
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, "sd-key", gotKey)
	assert.Contains(t, string(result), "img.example")
}

func TestStableDiffusionExecuteTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "processing"}`))
	}))
	t.Cleanup(srv.Close)

	adapter, err := NewStableDiffusion(StableDiffusionOptions{
		APIKey:     "sd-key",
		BaseURL:    srv.URL,
		Poll:       fastPoll(3),
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	_, err = adapter.Execute(context.Background(), json.RawMessage(`{}`))
	require.ErrorIs(t, err, poll.ErrTimeout)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTimeout))
}

func TestStableDiffusionExecuteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "invalid key"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	adapter, err := NewStableDiffusion(StableDiffusionOptions{
		APIKey:     "sd-key",
		BaseURL:    srv.URL,
		Poll:       fastPoll(5),
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	_, err = adapter.Execute(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid key")
}

func TestStableDiffusionRejectsBadPayload(t *testing.T) {
	adapter, err := NewStableDiffusion(StableDiffusionOptions{APIKey: "sd-key"})
	require.NoError(t, err)

	_, err = adapter.Execute(context.Background(), json.RawMessage(`[1, 2`))
	require.Error(t, err)
}

func TestStableDiffusionRequiresKey(t *testing.T) {
	_, err := NewStableDiffusion(StableDiffusionOptions{})
	assert.Error(t, err)
}
