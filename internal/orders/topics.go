package orders

const (
	TopicOrderPlaced       = "order.placed"
	TopicOrderPersistRetry = "order.persist.retry"
)

// Partition key = order id, supaya semua event 1 order tetap berurutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
