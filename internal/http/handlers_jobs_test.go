package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/zapgate/zapgate/internal/core"
	"github.com/zapgate/zapgate/internal/domain/model"
	"github.com/zapgate/zapgate/internal/mocks"
	"github.com/zapgate/zapgate/internal/service"
)

const testBaseURL = "https://api.zapgate.test"

type fixedQuoter struct {
	prices map[model.ServiceID]int64
}

func (q fixedQuoter) Known(svc model.ServiceID) bool {
	_, ok := q.prices[svc]
	return ok
}

func (q fixedQuoter) Quote(_ context.Context, svc model.ServiceID) (int64, error) {
	price, ok := q.prices[svc]
	if !ok {
		return 0, fmt.Errorf("no price for %s", svc)
	}
	return price, nil
}

type stubAdapter struct {
	service model.ServiceID
	result  json.RawMessage
	calls   atomic.Int32
}

func (a *stubAdapter) Service() model.ServiceID { return a.service }

func (a *stubAdapter) Execute(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	a.calls.Add(1)
	return a.result, nil
}

type stubResolver map[model.ServiceID]core.BackendAdapter

func (m stubResolver) Lookup(svc model.ServiceID) (core.BackendAdapter, bool) {
	adapter, ok := m[svc]
	return adapter, ok
}

type routerFixture struct {
	handler  http.Handler
	repo     *mocks.MemoryJobRepo
	provider *mocks.MockInvoiceProvider
	adapter  *stubAdapter
}

func newRouterFixture(t *testing.T, ctrl *gomock.Controller) *routerFixture {
	t.Helper()

	repo := mocks.NewMemoryJobRepo()
	provider := mocks.NewMockInvoiceProvider(ctrl)
	quoter := fixedQuoter{prices: map[model.ServiceID]int64{model.ServiceGPT: 21000}}
	adapter := &stubAdapter{service: model.ServiceGPT, result: json.RawMessage(`{"answer": "hello world"}`)}

	payments, err := service.NewPaymentService(service.PaymentServiceOptions{
		Repo:     repo,
		Provider: provider,
	})
	require.NoError(t, err)

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:          repo,
		Provider:      provider,
		Pricer:        quoter,
		Adapters:      stubResolver{model.ServiceGPT: adapter},
		Payments:      payments,
		PublicBaseURL: testBaseURL,
	})
	require.NoError(t, err)

	offerings, err := service.NewOfferingService(service.OfferingServiceOptions{
		Pricer:        quoter,
		PublicBaseURL: testBaseURL,
		Specs:         []service.OfferingSpec{{Service: model.ServiceGPT, Description: "Chat completion"}},
	})
	require.NoError(t, err)

	handler := NewRouter(RouterServices{Jobs: jobs, Offerings: offerings})
	return &routerFixture{handler: handler, repo: repo, provider: provider, adapter: adapter}
}

func (f *routerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *routerFixture) expectMint(hash string) {
	f.provider.EXPECT().PayableRange(gomock.Any()).Return(int64(1000), int64(100_000_000), nil)
	f.provider.EXPECT().
		RequestInvoice(gomock.Any(), int64(21000), gomock.Any()).
		Return(model.Invoice{
			Bolt11:      "lnbc210n1minted",
			PaymentHash: hash,
			VerifyURL:   "https://pay.example.com/verify/" + hash,
			AmountMsats: 21000,
		}, nil)
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newRouterFixture(t, ctrl)
	hash := strings.Repeat("ab", 32)
	f.expectMint(hash)

	// Submission yields 402 with the invoice and a result URL.
	rec := f.do(http.MethodPost, "/gpt", `{"prompt": "hi"}`)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var invoice model.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &invoice))
	assert.Equal(t, "lnbc210n1minted", invoice.Bolt11)
	assert.Equal(t, hash, invoice.PaymentHash)
	require.NotNil(t, invoice.SuccessAction)
	assert.Equal(t, testBaseURL+"/GPT/"+hash+"/get_result", invoice.SuccessAction.URL)

	resultPath := "/GPT/" + hash + "/get_result"

	// Unpaid polls re-serve the invoice with 402 and an explicit isPaid flag.
	f.provider.EXPECT().CheckSettled(gomock.Any(), invoice.VerifyURL).Return(false, nil)
	rec = f.do(http.MethodGet, resultPath, "")
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	var unpaidKeys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unpaidKeys))
	require.Contains(t, unpaidKeys, "invoice")
	require.Contains(t, unpaidKeys, "isPaid")
	var unpaid model.PaymentStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unpaid))
	assert.False(t, unpaid.IsPaid)
	assert.Equal(t, invoice.Bolt11, unpaid.Invoice.Bolt11)

	// First settled poll dispatches and answers 202.
	f.provider.EXPECT().CheckSettled(gomock.Any(), invoice.VerifyURL).Return(true, nil)
	rec = f.do(http.MethodGet, resultPath, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"state": "WORKING"}`, rec.Body.String())

	require.Eventually(t, func() bool {
		return f.repo.Snapshot(hash).State == model.StateSucceeded
	}, 2*time.Second, 5*time.Millisecond)

	// Terminal result is served with 200, byte for byte.
	rec = f.do(http.MethodGet, resultPath, "")
	require.Equal(t, http.StatusOK, rec.Code)
	first := rec.Body.Bytes()
	assert.JSONEq(t, `{"answer": "hello world"}`, string(first))

	rec = f.do(http.MethodGet, resultPath, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, rec.Body.Bytes())
	assert.Equal(t, int32(1), f.adapter.calls.Load())

	// check_payment reports the settled invoice without re-dispatching.
	rec = f.do(http.MethodGet, "/GPT/"+hash+"/check_payment", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status model.PaymentStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.IsPaid)
	assert.Equal(t, invoice.Bolt11, status.Invoice.Bolt11)
}

func TestSubmitValidation(t *testing.T) {
	t.Run("unknown service", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		f := newRouterFixture(t, ctrl)
		rec := f.do(http.MethodPost, "/fax", `{}`)
		require.Equal(t, http.StatusNotFound, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "not_found", body["error"])
	})

	t.Run("malformed payload", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		f := newRouterFixture(t, ctrl)
		rec := f.do(http.MethodPost, "/gpt", `{"prompt": `)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized payload", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		f := newRouterFixture(t, ctrl)
		payload := fmt.Sprintf(`{"prompt": %q}`, strings.Repeat("a", maxRequestBodyBytes))
		rec := f.do(http.MethodPost, "/gpt", payload)
		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestGetResultUnknownJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newRouterFixture(t, ctrl)
	rec := f.do(http.MethodGet, "/GPT/"+strings.Repeat("00", 32)+"/get_result", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettlementOutageIsRetryable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newRouterFixture(t, ctrl)
	hash := strings.Repeat("cd", 32)
	f.expectMint(hash)

	rec := f.do(http.MethodPost, "/gpt", `{}`)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	f.provider.EXPECT().
		CheckSettled(gomock.Any(), gomock.Any()).
		Return(false, assert.AnError)

	rec = f.do(http.MethodGet, "/GPT/"+hash+"/get_result", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "settlement_check_failed", body["error"])

	// The job record is untouched and the poll can be retried.
	assert.Equal(t, model.StateAwaitingPayment, f.repo.Snapshot(hash).State)
}

func TestOfferingsEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newRouterFixture(t, ctrl)
	rec := f.do(http.MethodGet, "/offerings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Offerings []service.Offering `json:"offerings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Offerings, 1)
	assert.Equal(t, model.ServiceGPT, body.Offerings[0].Service)
	assert.Equal(t, int64(21000), body.Offerings[0].CostMsats)
	assert.Equal(t, testBaseURL+"/GPT", body.Offerings[0].Endpoint)
}

func TestHealthz(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newRouterFixture(t, ctrl)

	rec := f.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = f.do(http.MethodHead, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}
