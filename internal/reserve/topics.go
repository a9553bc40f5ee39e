package reserve

const (
	TopicOrderReserved = "store.order.reserved"
	TopicOrderExpired  = "store.order.expired"
	TopicOrderVerified = "store.order.verified"
	TopicStockChanged  = "store.stock.changed"
)

// Partition key = order_id (or product_id for stock events) so events about
// one entity keep their order.
func PartitionKey(id string) []byte { return []byte(id) }
