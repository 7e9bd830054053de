package orders

const (
	TopicOrderPlaced   = "shop.order.placed"
	TopicOrderVerified = "shop.order.verified"
	TopicOrderRejected = "shop.order.rejected"
)

// Partition key = order id so all events for one order stay ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
