package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
)

// NewRouter wires the shared middleware and the public endpoints.
func NewRouter(log zerolog.Logger, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, traceID, accessLog(log), middleware.Recoverer)
	r.Use(observe(m))
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())
	return r
}

// Handler is the shape every resource handler shares.
type Handler interface {
	Register(r chi.Router)
}

// Mount registers handlers behind bearer auth.
func Mount(r chi.Router, auth *Authenticator, hs ...Handler) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		for _, h := range hs {
			h.Register(r)
		}
	})
}
