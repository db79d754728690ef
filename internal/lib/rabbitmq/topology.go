package rabbitmq

// Топология обмена уведомлениями.
const (
	NotificationsExchange = "notifications"
	ReminderRoutingKey    = "reminder"
	ReminderQueue         = "notifications.reminder"
)

// QueueConfig описывает очередь и ключ её привязки к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// NotificationQueues возвращает очереди, объявляемые при старте.
func NotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: ReminderQueue, RoutingKey: ReminderRoutingKey},
	}
}
