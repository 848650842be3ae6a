package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PlacedItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type OrderPlacedEvent struct {
	OrderID       string          `json:"order_id"`
	Kind          OrderKind       `json:"kind"`
	UserID        string          `json:"user_id,omitempty"`
	Items         []PlacedItem    `json:"items,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Timestamp     time.Time       `json:"timestamp"`
}

type PaymentOrphanedEvent struct {
	OrphanID       string          `json:"orphan_id"`
	PaymentID      string          `json:"payment_id"`
	GatewayOrderID string          `json:"gateway_order_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Reason         string          `json:"reason"`
	Timestamp      time.Time       `json:"timestamp"`
}

// OrphanedPayment records a payment the gateway captured for which no order
// could be stored. Support staff reconcile these by hand.
type OrphanedPayment struct {
	ID         string          `json:"id"`
	Proof      PaymentProof    `json:"proof"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	OrderKind  OrderKind       `json:"orderKind"`
	Request    json.RawMessage `json:"request"`
	Reason     string          `json:"reason"`
	Resolved   bool            `json:"resolved"`
	CreatedAt  time.Time       `json:"createdAt"`
	ResolvedAt *time.Time      `json:"resolvedAt,omitempty"`
}
