// Package httpx provides the HTTP surface of the zapgate payment-gated job
// broker.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/zapgate/zapgate/internal/domain/model"
	"github.com/zapgate/zapgate/internal/service"
)

// maxRequestBodyBytes caps job submission payloads.
const maxRequestBodyBytes = 1 << 20

// JobHandlers provides HTTP handlers for the paid-job lifecycle.
type JobHandlers struct {
	Svc *service.JobService
}

// Submit handles job submission: the request payload is stored and an invoice
// is returned with 402 Payment Required. The client pays, then polls the
// success-action URL for the result.
func (h *JobHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	svcID, ok := parseService(w, r)
	if !ok {
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "read_body_failed", Err: err})
		return
	}
	if len(payload) > maxRequestBodyBytes {
		WriteError(w, ErrorParams{
			Code:    http.StatusRequestEntityTooLarge,
			ErrCode: "payload_too_large",
			Err:     errors.New("request payload exceeds limit"),
		})
		return
	}

	job, err := h.Svc.Submit(r.Context(), svcID, json.RawMessage(payload))
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusPaymentRequired, job.Invoice)
}

// GetResult handles result polling. Unpaid jobs get 402 with the invoice,
// in-flight jobs get 202, terminal jobs get their stored result bytes with 200.
// The first poll after settlement triggers the dispatch.
func (h *JobHandlers) GetResult(w http.ResponseWriter, r *http.Request) {
	svcID, ok := parseService(w, r)
	if !ok {
		return
	}
	hash, ok := parsePaymentHash(w, r)
	if !ok {
		return
	}

	result, err := h.Svc.Poll(r.Context(), svcID, hash)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	switch result.State {
	case service.PollUnpaid:
		WriteJSON(w, http.StatusPaymentRequired, model.PaymentStatus{Invoice: result.Job.Invoice})
	case service.PollWorking:
		WriteJSON(w, http.StatusAccepted, map[string]string{"state": string(service.PollWorking)})
	case service.PollDone:
		WriteRawJSON(w, http.StatusOK, result.Job.ResultPayload)
	default:
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "unknown_poll_state",
			Err:     errors.New("unknown poll state"),
		})
	}
}

// CheckPayment reports invoice settlement without advancing the job.
func (h *JobHandlers) CheckPayment(w http.ResponseWriter, r *http.Request) {
	svcID, ok := parseService(w, r)
	if !ok {
		return
	}
	hash, ok := parsePaymentHash(w, r)
	if !ok {
		return
	}

	status, err := h.Svc.CheckPayment(r.Context(), svcID, hash)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

func parseService(w http.ResponseWriter, r *http.Request) (model.ServiceID, bool) {
	raw := r.PathValue("service")
	var svcID model.ServiceID
	if err := svcID.UnmarshalText([]byte(raw)); err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("service is required"),
		})
		return "", false
	}
	return svcID, true
}

func parsePaymentHash(w http.ResponseWriter, r *http.Request) (string, bool) {
	hash := r.PathValue("paymentHash")
	if hash == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("payment hash is required"),
		})
		return "", false
	}
	return hash, true
}
