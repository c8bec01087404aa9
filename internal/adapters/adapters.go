// Package adapters implements the backend adapters that perform the paid
// work: an OpenAI chat-completions backend, a self-polling Stable Diffusion
// backend, and a relay backend that forwards jobs to another payment-gated
// endpoint. Each adapter turns its upstream protocol into a single
// Execute(payload) -> result call.
package adapters

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zapgate/zapgate/internal/core"
	"github.com/zapgate/zapgate/internal/domain/model"
)

const maxBackendBodyBytes = 4 << 20

// Registry resolves a service ID to its backend adapter.
type Registry struct {
	adapters map[model.ServiceID]core.BackendAdapter
}

// NewRegistry builds a Registry from the given adapters. Registering two
// adapters for the same service is a configuration error.
func NewRegistry(adapters ...core.BackendAdapter) (*Registry, error) {
	m := make(map[model.ServiceID]core.BackendAdapter, len(adapters))
	for _, a := range adapters {
		if a == nil {
			return nil, fmt.Errorf("nil adapter")
		}
		id := a.Service()
		if _, dup := m[id]; dup {
			return nil, fmt.Errorf("duplicate adapter for service %s", id)
		}
		m[id] = a
	}
	return &Registry{adapters: m}, nil
}

// Lookup returns the adapter for a service.
func (r *Registry) Lookup(service model.ServiceID) (core.BackendAdapter, bool) {
	a, ok := r.adapters[service]
	return a, ok
}

// Services returns the registered service IDs.
func (r *Registry) Services() []model.ServiceID {
	out := make([]model.ServiceID, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	return out
}

// readBody drains a response body with a size cap.
func readBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(io.LimitReader(resp.Body, maxBackendBodyBytes))
}

// statusError formats an upstream non-2xx response as an error.
func statusError(resp *http.Response, body []byte) error {
	return fmt.Errorf("upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
