package http

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mmuslimabdulj/secret-santa/internal/metrics"
	"github.com/mmuslimabdulj/secret-santa/internal/middleware"
)

// RouterOptions wires the cross-cutting concerns around the handlers
type RouterOptions struct {
	APILimiter     *middleware.IPRateLimiter
	WSLimiter      *middleware.IPRateLimiter
	StrictLimiter  *middleware.IPRateLimiter
	Metrics        middleware.HTTPRecorder
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Version        string
	Log            *zap.Logger
}

// NewRouter registers every route and applies the middleware chain
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		opts.Log.Error("panic serving request", zap.String("path", r.URL.Path), zap.Any("panic", v))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{Code: codeInternal, Message: "internal error"}})
	}
	mux.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errorBody{Code: "ROUTE_NOT_FOUND", Message: "no such route"}})
	})

	route := func(method, path string, limiter *middleware.IPRateLimiter, handle httprouter.Handle) {
		if limiter != nil {
			handle = middleware.RateLimitHandle(limiter, handle)
		}
		if opts.Metrics != nil && !metrics.ShouldSkipEndpoint(path) {
			handle = middleware.Instrument(opts.Metrics, path, handle)
		}
		mux.Handle(method, path, handle)
	}

	route(http.MethodPost, "/api/rooms", opts.StrictLimiter, h.HandleCreateRoom)
	route(http.MethodGet, "/api/rooms/:id", opts.APILimiter, h.HandleGetRoom)
	route(http.MethodGet, "/api/rooms/:id/participants", opts.APILimiter, h.HandleListParticipants)
	route(http.MethodPost, "/api/rooms/:id/participants", opts.APILimiter, h.HandleJoin)
	route(http.MethodPost, "/api/rooms/:id/match", opts.StrictLimiter, h.HandleStartMatching)
	route(http.MethodGet, "/api/rooms/:id/participants/:pid/recipient", opts.APILimiter, h.HandleRecipient)
	route(http.MethodGet, "/api/rooms/:id/qr.png", opts.APILimiter, h.HandleQR)
	route(http.MethodGet, "/api/rooms/:id/events", opts.WSLimiter, h.HandleWebSocket)

	route(http.MethodGet, "/healthz", nil, h.HandleHealth)
	route(http.MethodGet, "/version", nil, HandleVersion(opts.Version))
	if opts.Gatherer != nil {
		mux.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	handler = middleware.CORS(opts.AllowedOrigins)(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Logger(opts.Log)(handler)
	return handler
}
