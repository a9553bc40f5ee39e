package reserve

import "time"

type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku,omitempty"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	Stock      int       `json:"stock"`    // total owned units
	Reserved   int       `json:"reserved"` // soft holds from open carts
	UpdatedAt  time.Time `json:"updated_at"`
}

// Available is what a shopper can still put a hold on right now.
func (p Product) Available() int { return p.Stock - p.Reserved }

type Account struct {
	ID           string    `json:"id"`
	BalanceCents int       `json:"balance_cents"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type OrderItem struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceCents int    `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
	LineTotalCents int    `json:"line_total_cents"`
}

type Order struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Items      []OrderItem `json:"items"`
	TotalCents int         `json:"total_cents"`
	Status     Status      `json:"status"`
	PickupCode string      `json:"pickup_code"`
	CreatedAt  time.Time   `json:"created_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
	VerifiedAt *time.Time  `json:"verified_at,omitempty"`
}

// CodeLock pins a pickup code to one active order. It exists only while the
// order is reserved; the terminal transitions delete it.
type CodeLock struct {
	Code      string    `json:"code"`
	OrderID   string    `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// Document key scheme. Everything the engine touches lives in one keyspace.
const (
	KeyPrefixProduct = "product:"
	KeyPrefixAccount = "account:"
	KeyPrefixOrder   = "order:"
	KeyPrefixCode    = "code:"
)

func ProductKey(id string) string { return KeyPrefixProduct + id }
func AccountKey(id string) string { return KeyPrefixAccount + id }
func OrderKey(id string) string   { return KeyPrefixOrder + id }
func CodeKey(code string) string  { return KeyPrefixCode + code }
