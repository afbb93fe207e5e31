// Package httpapi exposes the order store and session control plane.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"voice-order-logger/internal/models"
	"voice-order-logger/internal/session"
)

// OrderStore is the persistence surface the API serves.
type OrderStore interface {
	Create(ctx context.Context, draft models.OrderDraft) (models.Order, error)
	Update(ctx context.Context, id string, draft models.OrderDraft) (models.Order, error)
	List(ctx context.Context, page, pageSize int) ([]models.Order, int, error)
	All(ctx context.Context) ([]models.Order, error)
	Stats(ctx context.Context) (models.Stats, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Normalizer turns raw speech text into the canonical order line.
type Normalizer interface {
	Normalize(ctx context.Context, raw string) string
}

// SessionController is the capture session control surface.
type SessionController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() session.Status
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(store OrderStore, normalizer Normalizer, sess SessionController) http.Handler {
	h := &handlers{store: store, normalizer: normalizer, session: sess}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Post("/", h.createOrder)
			r.Delete("/", h.deleteAllOrders)
			r.Patch("/{id}", h.updateOrder)
			r.Get("/stats", h.orderStats)
			r.Get("/export", h.exportOrders)
		})
		r.Post("/normalize", h.normalize)
		r.Route("/session", func(r chi.Router) {
			r.Post("/start", h.sessionStart)
			r.Post("/stop", h.sessionStop)
			r.Get("/status", h.sessionStatus)
		})
	})

	return r
}
