package redisx

import "time"

const (
	// Order status cache in front of the store: order_status:{order_id} ->
	// {"status":"...","expires_at":"..."}
	KeyOrderStatus = "order_status:%s"

	// Catalog read model maintained by the catalog consumer:
	// catalog:product:{product_id} -> product snapshot JSON
	KeyCatalogProduct = "catalog:product:%s"

	// Event-processing dedup: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLCatalog     = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
