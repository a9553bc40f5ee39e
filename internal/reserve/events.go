package reserve

import (
	"encoding/json"
	"time"
)

const (
	EventOrderReserved = "OrderReserved"
	EventOrderExpired  = "OrderExpired"
	EventOrderVerified = "OrderVerified"
	EventStockChanged  = "StockChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`   // uuid
	EventType     string          `json:"event_type"` // one of the consts above
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"` // RFC3339
	Producer      string          `json:"producer"`    // e.g. "store-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderReservedPayload struct {
	OrderID    string      `json:"order_id"`
	UserID     string      `json:"user_id"`
	Items      []OrderItem `json:"items"`
	TotalCents int         `json:"total_cents"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

type OrderExpiredPayload struct {
	OrderID string      `json:"order_id"`
	UserID  string      `json:"user_id"`
	Items   []OrderItem `json:"items"` // stock restored per line
}

type OrderVerifiedPayload struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	VerifiedAt time.Time `json:"verified_at"`
}

// StockChangedPayload carries the post-commit snapshot for the catalog read
// model; consumers overwrite, they never apply deltas.
type StockChangedPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}
