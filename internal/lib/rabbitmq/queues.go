package rabbitmq

// RoutingKeyActivated ключ события об активации или продлении подписки.
const RoutingKeyActivated = "subscription.activated"

// QueueConfig связывает имя очереди с ключом маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает очереди, которые читает отправитель уведомлений.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "notification.activated", RoutingKey: RoutingKeyActivated},
	}
}
