package httpx

import (
	"log/slog"
	"net/http"

	"github.com/zapgate/zapgate/internal/service"
)

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Jobs      *service.JobService
	Offerings *service.OfferingService // Optional: omits /offerings when nil
	Logger    *slog.Logger
}

// NewRouter creates and configures the broker's HTTP handler.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs}
	registerJobRoutes(mux, jobHandlers)

	if services.Offerings != nil {
		offeringHandlers := &OfferingHandlers{Svc: services.Offerings}
		mux.HandleFunc("GET /offerings", offeringHandlers.List)
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var handler http.Handler = mux
	handler = CORS()(handler)
	handler = Logging(logger)(handler)
	handler = RequestID()(handler)
	handler = Recover(logger)(handler)
	return handler
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /{service}", h.Submit)
	mux.HandleFunc("GET /{service}/{paymentHash}/get_result", h.GetResult)
	mux.HandleFunc("GET /{service}/{paymentHash}/check_payment", h.CheckPayment)
}
