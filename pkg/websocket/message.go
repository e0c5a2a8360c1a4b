package websocket

import "time"

// Топики, на которые подписываются дашборды.
const (
	TopicQueue      = "queue"
	TopicRetryQueue = "queue:retry"
)

// Envelope — это "конверт", в котором мы отправляем наши сообщения.
// Тип и топик позволяют фронтенду понять, что делать с payload.
type Envelope struct {
	EventID   string      `json:"eventId"`
	Type      string      `json:"type"`
	Topic     string      `json:"topic"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}
