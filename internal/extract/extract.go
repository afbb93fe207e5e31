// Package extract turns a normalized utterance line into an order draft.
// It is deterministic and does no I/O.
package extract

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"voice-order-logger/internal/models"
)

// ErrRejected is returned when a line does not yield a valid order.
// No partial records are ever produced.
var ErrRejected = errors.New("utterance rejected: no valid order")

// orderPattern matches "<item> <price> [quantity]" with an optional
// currency marker before the price and optional trailing unit text
// after the quantity (e.g. "2份", "3杯").
var orderPattern = regexp.MustCompile(`^(.+?)\s+(?:\$)?(\d+(?:\.\d+)?)(?:\s+(\d+)(?:[^\d]*)?)?$`)

// Extract parses a single normalized line into an order draft.
// Item must be non-empty after trimming and price must be a finite
// number strictly greater than zero. Quantity defaults to 1 when
// absent or invalid. Any validation failure rejects the whole line.
func Extract(text string) (models.OrderDraft, error) {
	m := orderPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return models.OrderDraft{}, ErrRejected
	}

	item := strings.TrimSpace(m[1])
	if item == "" {
		return models.OrderDraft{}, ErrRejected
	}

	price, err := strconv.ParseFloat(m[2], 64)
	if err != nil || math.IsInf(price, 0) || math.IsNaN(price) || price <= 0 {
		return models.OrderDraft{}, ErrRejected
	}

	quantity := 1
	if m[3] != "" {
		if q, err := strconv.Atoi(m[3]); err == nil && q > 0 {
			quantity = q
		}
	}

	return models.OrderDraft{
		Item:     item,
		Price:    price,
		Quantity: quantity,
	}, nil
}
