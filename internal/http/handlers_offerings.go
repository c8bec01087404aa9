package httpx

import (
	"net/http"

	"github.com/zapgate/zapgate/internal/service"
)

// OfferingHandlers serves the service discovery document.
type OfferingHandlers struct {
	Svc *service.OfferingService
}

// List returns every configured offering with a live price quote. Services
// whose quote fails are listed as DOWN rather than omitted.
func (h *OfferingHandlers) List(w http.ResponseWriter, r *http.Request) {
	offerings := h.Svc.Build(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{"offerings": offerings})
}
