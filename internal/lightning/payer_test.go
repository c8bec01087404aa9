package lightning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLNbitsPayerPay(t *testing.T) {
	var gotKey string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/payments", r.URL.Path)
		gotKey = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeTestJSON(w, map[string]any{"payment_hash": "abc"})
	}))
	t.Cleanup(srv.Close)

	payer, err := NewLNbitsPayer(LNbitsPayerOptions{
		BaseURL:    srv.URL + "/",
		APIKey:     "wallet-key",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	require.NoError(t, payer.Pay(context.Background(), "lnbc1fake"))
	assert.Equal(t, "wallet-key", gotKey)
	assert.Equal(t, true, gotBody["out"])
	assert.Equal(t, "lnbc1fake", gotBody["bolt11"])
}

func TestLNbitsPayerRejectsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"insufficient balance"}`, http.StatusPaymentRequired)
	}))
	t.Cleanup(srv.Close)

	payer, err := NewLNbitsPayer(LNbitsPayerOptions{
		BaseURL:    srv.URL,
		APIKey:     "k",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	err = payer.Pay(context.Background(), "lnbc1fake")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestLNbitsPayerValidation(t *testing.T) {
	_, err := NewLNbitsPayer(LNbitsPayerOptions{APIKey: "k"})
	assert.Error(t, err)

	_, err = NewLNbitsPayer(LNbitsPayerOptions{BaseURL: "https://x"})
	assert.Error(t, err)

	payer, err := NewLNbitsPayer(LNbitsPayerOptions{BaseURL: "https://x", APIKey: "k"})
	require.NoError(t, err)
	assert.Error(t, payer.Pay(context.Background(), ""))
}
