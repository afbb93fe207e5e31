// Package models defines the data structures shared across the service.
package models

import "time"

// Order is a persisted order record captured from speech.
type Order struct {
	ID        string    `json:"id"`
	Item      string    `json:"item"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// Subtotal returns price multiplied by quantity.
func (o Order) Subtotal() float64 {
	q := o.Quantity
	if q < 1 {
		q = 1
	}
	return o.Price * float64(q)
}

// OrderDraft is a validated but not yet persisted order, the output of
// the extraction grammar.
type OrderDraft struct {
	Item     string  `json:"item"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Stats holds the aggregate totals computed over all stored orders.
type Stats struct {
	TotalItems  int     `json:"totalItems"`
	TotalAmount float64 `json:"totalAmount"`
}

// Fragment is a single recognized piece of speech. Only final fragments
// are eligible for extraction; interim fragments are display-only.
type Fragment struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// OrderRecorded is the event published after an order is persisted.
type OrderRecorded struct {
	EventType string  `json:"eventType"`
	OrderID   string  `json:"orderId"`
	Item      string  `json:"item"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Timestamp int64   `json:"timestamp"`
}

// OrdersRefresh is the event published to tell read-model consumers to
// reload their listing and totals.
type OrdersRefresh struct {
	EventType string `json:"eventType"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}
