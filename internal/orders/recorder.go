package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-order-logger/internal/models"
	"voice-order-logger/internal/observability/metrics"
)

// ErrPersistFailed is returned when the store rejected the order on
// both the initial attempt and the single retry.
var ErrPersistFailed = errors.New("order persistence failed after retry")

// Publisher signals downstream read-model consumers. Publish errors are
// logged, never surfaced.
type Publisher interface {
	PublishRecorded(ctx context.Context, order models.Order) error
	PublishRefresh(ctx context.Context, reason string) error
}

// Recorder submits validated drafts to the store API with a bounded
// retry. The retry reuses the same payload and is not idempotent: a
// transport failure after a server-side success can double-insert.
// The store would need an idempotency key to close that gap.
type Recorder struct {
	client    *http.Client
	baseURL   string
	publisher Publisher
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewRecorder creates a recorder targeting the store API at baseURL.
func NewRecorder(baseURL string, publisher Publisher) *Recorder {
	return &Recorder{
		client:    &http.Client{Timeout: 10 * time.Second},
		baseURL:   baseURL,
		publisher: publisher,
		metrics:   metrics.DefaultMetrics,
		log:       log.With().Str("component", "orders.recorder").Logger(),
	}
}

// Record submits the draft, retrying exactly once on failure. On
// success it publishes the recorded event and the refresh signal. A
// returned error means the order is lost; the caller must not treat it
// as fatal.
func (r *Recorder) Record(ctx context.Context, draft models.OrderDraft) error {
	order, err := r.submit(ctx, draft, false)
	if err != nil {
		r.log.Warn().Err(err).Str("item", draft.Item).Msg("order submit failed, retrying once")
		order, err = r.submit(ctx, draft, true)
	}
	if err != nil {
		r.metrics.RecordPersistOutcome(false)
		r.log.Error().Err(err).Str("item", draft.Item).Msg("order lost after retry")
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	r.metrics.RecordPersistOutcome(true)
	r.log.Info().
		Str("orderId", order.ID).
		Str("item", order.Item).
		Float64("price", order.Price).
		Int("quantity", order.Quantity).
		Msg("order recorded")

	if err := r.publisher.PublishRecorded(ctx, order); err != nil {
		r.log.Warn().Err(err).Msg("failed to publish recorded event")
	}
	if err := r.publisher.PublishRefresh(ctx, "order_recorded"); err != nil {
		r.log.Warn().Err(err).Msg("failed to publish refresh signal")
	}
	return nil
}

func (r *Recorder) submit(ctx context.Context, draft models.OrderDraft, retry bool) (models.Order, error) {
	r.metrics.RecordPersistAttempt(retry)

	payload, err := json.Marshal(draft)
	if err != nil {
		return models.Order{}, fmt.Errorf("marshal draft: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return models.Order{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return models.Order{}, fmt.Errorf("post order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Order{}, fmt.Errorf("store returned %d: %s", resp.StatusCode, body)
	}

	var reply struct {
		Success bool         `json:"success"`
		Order   models.Order `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return models.Order{}, fmt.Errorf("decode reply: %w", err)
	}
	if !reply.Success {
		return models.Order{}, errors.New("store reported failure")
	}
	return reply.Order, nil
}
