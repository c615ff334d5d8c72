package orders

const (
	TopicPaymentConfirmation = "payment.confirmation"
	TopicOrderCreated        = "order.created"
	TopicOrderSettled        = "order.settled"
)

// Partition key = order id so every event for one order stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
