package orders

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderStatusChanged = "order.status_changed"
	TopicOrderCancelled     = "order.cancelled"
	TopicStockLow           = "inventory.low_stock"
	TopicRestockPending     = "inventory.restock_pending"
)

// Partition key = order_id so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
