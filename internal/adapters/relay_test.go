package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapgate/zapgate/internal/domain/model"
	apperrors "github.com/zapgate/zapgate/internal/errors"
	"github.com/zapgate/zapgate/internal/poll"
)

// recordingPayer captures paid invoices.
type recordingPayer struct {
	paid []string
	err  error
}

func (p *recordingPayer) Pay(_ context.Context, bolt11 string) error {
	if p.err != nil {
		return p.err
	}
	p.paid = append(p.paid, bolt11)
	return nil
}

// downstreamFixture is a fake payment-gated service: POST answers 402 with an
// invoice, and the result URL walks 402 -> 202 -> 200.
type downstreamFixture struct {
	srv         *httptest.Server
	resultPolls int
}

func newDownstreamFixture(t *testing.T) *downstreamFixture {
	t.Helper()

	f := &downstreamFixture{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(model.Invoice{
			Bolt11:      "lnbc1downstream",
			PaymentHash: "feed01",
			SuccessAction: &model.SuccessAction{
				Tag: "url",
				URL: f.srv.URL + "/GPT/feed01/get_result",
			},
		})
	})
	mux.HandleFunc("GET /GPT/feed01/get_result", func(w http.ResponseWriter, r *http.Request) {
		f.resultPolls++
		w.Header().Set("Content-Type", "application/json")
		switch f.resultPolls {
		case 1:
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"isPaid": false}`))
		case 2:
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"state": "dispatched"}`))
		default:
			_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "relayed"}}]}`))
		}
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func TestRelayExecute(t *testing.T) {
	f := newDownstreamFixture(t)
	payer := &recordingPayer{}

	adapter, err := NewRelay(RelayOptions{
		TargetURL:  f.srv.URL,
		Payer:      payer,
		Poll:       fastPoll(10),
		HTTPClient: f.srv.Client(),
	})
	require.NoError(t, err)
	assert.Equal(t, model.ServiceRelay, adapter.Service())

	result, err := adapter.Execute(context.Background(), json.RawMessage(`{"model": "gpt-4"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"lnbc1downstream"}, payer.paid)
	assert.Equal(t, 3, f.resultPolls)
	assert.Contains(t, string(result), "relayed")
}

func TestRelayExecutePayerFailure(t *testing.T) {
	f := newDownstreamFixture(t)
	payer := &recordingPayer{err: errors.New("wallet empty")}

	adapter, err := NewRelay(RelayOptions{
		TargetURL:  f.srv.URL,
		Payer:      payer,
		Poll:       fastPoll(10),
		HTTPClient: f.srv.Client(),
	})
	require.NoError(t, err)

	_, err = adapter.Execute(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet empty")
	assert.Zero(t, f.resultPolls)
}

func TestRelayExecuteUnexpectedQuoteStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	adapter, err := NewRelay(RelayOptions{
		TargetURL:  srv.URL,
		Payer:      &recordingPayer{},
		Poll:       fastPoll(5),
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	_, err = adapter.Execute(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestRelayExecuteTimesOutWhileWorking(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("POST /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(model.Invoice{
			Bolt11:        "lnbc1downstream",
			PaymentHash:   "feed02",
			SuccessAction: &model.SuccessAction{Tag: "url", URL: srv.URL + "/GPT/feed02/get_result"},
		})
	})
	mux.HandleFunc("GET /GPT/feed02/get_result", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"state": "WORKING"}`))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	adapter, err := NewRelay(RelayOptions{
		TargetURL:  srv.URL,
		Payer:      &recordingPayer{},
		Poll:       fastPoll(3),
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	_, err = adapter.Execute(context.Background(), json.RawMessage(`{}`))
	require.ErrorIs(t, err, poll.ErrTimeout)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTimeout))
}

func TestRelayResultURLFallback(t *testing.T) {
	adapter, err := NewRelay(RelayOptions{
		TargetURL: "https://gate.example.com/GPT",
		Payer:     &recordingPayer{},
	})
	require.NoError(t, err)

	u, err := adapter.resultURL(model.Invoice{PaymentHash: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, "https://gate.example.com/GPT/abc123/get_result", u)

	_, err = adapter.resultURL(model.Invoice{})
	require.Error(t, err)
}

func TestRelayValidation(t *testing.T) {
	_, err := NewRelay(RelayOptions{Payer: &recordingPayer{}})
	assert.Error(t, err)

	_, err = NewRelay(RelayOptions{TargetURL: "https://x"})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	gpt, err := NewOpenAI(OpenAIOptions{APIKey: "k"})
	require.NoError(t, err)
	sd, err := NewStableDiffusion(StableDiffusionOptions{APIKey: "k"})
	require.NoError(t, err)

	reg, err := NewRegistry(gpt, sd)
	require.NoError(t, err)

	got, ok := reg.Lookup(model.ServiceGPT)
	assert.True(t, ok)
	assert.Equal(t, gpt, got)

	_, ok = reg.Lookup(model.ServiceRelay)
	assert.False(t, ok)

	assert.Len(t, reg.Services(), 2)

	_, err = NewRegistry(gpt, gpt)
	assert.Error(t, err)
}
