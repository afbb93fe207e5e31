package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"voice-order-logger/internal/engine"
	"voice-order-logger/internal/models"
	"voice-order-logger/internal/orders"
)

type handlers struct {
	store      OrderStore
	normalizer Normalizer
	session    SessionController
}

type orderPayload struct {
	Item     string  `json:"item"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// validate applies the record invariants. Quantity is coerced, never
// rejected.
func (p orderPayload) validate() (models.OrderDraft, error) {
	item := strings.TrimSpace(p.Item)
	if item == "" {
		return models.OrderDraft{}, errors.New("item must not be empty")
	}
	if p.Price <= 0 || math.IsInf(p.Price, 0) || math.IsNaN(p.Price) {
		return models.OrderDraft{}, fmt.Errorf("price must be positive, got %v", p.Price)
	}
	quantity := p.Quantity
	if quantity < 1 {
		quantity = 1
	}
	return models.OrderDraft{Item: item, Price: p.Price, Quantity: quantity}, nil
}

func (h *handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var payload orderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	draft, err := payload.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.store.Create(r.Context(), draft)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create order")
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

func (h *handlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var payload orderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	draft, err := payload.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.store.Update(r.Context(), id, draft)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to update order")
		writeError(w, http.StatusInternalServerError, "failed to update order")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", orders.DefaultPageSize)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = orders.DefaultPageSize
	}
	if pageSize > orders.MaxPageSize {
		pageSize = orders.MaxPageSize
	}

	rows, total, err := h.store.List(r.Context(), page, pageSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list orders")
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if rows == nil {
		rows = []models.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders":   rows,
		"page":     page,
		"pageSize": pageSize,
		"total":    total,
	})
}

func (h *handlers) deleteAllOrders(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.DeleteAll(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete orders")
		writeError(w, http.StatusInternalServerError, "failed to delete orders")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

// orderStats degrades to zero totals on storage errors so display
// surfaces never break over a transient read failure.
func (h *handlers) orderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute stats")
		stats = models.Stats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) exportOrders(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.All(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to export orders")
		writeError(w, http.StatusInternalServerError, "failed to export orders")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", orders.ExportFilename(time.Now())))
	if err := orders.WriteCSV(w, all); err != nil {
		log.Error().Err(err).Msg("Failed to write CSV export")
	}
}

func (h *handlers) normalize(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}
	normalized := h.normalizer.Normalize(r.Context(), payload.Text)
	writeJSON(w, http.StatusOK, map[string]string{"normalized": normalized})
}

func (h *handlers) sessionStart(w http.ResponseWriter, r *http.Request) {
	err := h.session.Start(r.Context())
	if errors.Is(err, engine.ErrEngineUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "speech engine unavailable")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to start session")
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

func (h *handlers) sessionStop(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Stop(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to stop session")
		writeError(w, http.StatusInternalServerError, "failed to stop session")
		return
	}
	writeJSON(w, http.StatusOK, h.session.Status())
}

func (h *handlers) sessionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Status())
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
