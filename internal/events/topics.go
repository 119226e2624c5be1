package events

const (
	TopicOrderCreated        = "order.created"
	TopicOrderPaid           = "order.paid"
	TopicPaymentNotification = "payment.notification"
)

// Topics lists every topic the event log accepts.
func Topics() []string {
	return []string{TopicOrderCreated, TopicOrderPaid, TopicPaymentNotification}
}

func knownTopic(topic string) bool {
	for _, t := range Topics() {
		if t == topic {
			return true
		}
	}
	return false
}
