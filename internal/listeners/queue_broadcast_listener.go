package listeners

import (
	"go.uber.org/zap"

	"triage-system/internal/dto"
	"triage-system/internal/queue"
	"triage-system/pkg/websocket"
)

// QueueBroadcastListener - мост между диспетчером событий очереди и
// WebSocket-хабом: каждое QueueUpdateMessage уходит в общий топик, события
// повторной очереди дублируются в свой, чтобы табло дозвона не фильтровало
// общий поток.
type QueueBroadcastListener struct {
	hub    *websocket.Hub
	logger *zap.Logger
}

func NewQueueBroadcastListener(hub *websocket.Hub, logger *zap.Logger) *QueueBroadcastListener {
	return &QueueBroadcastListener{hub: hub, logger: logger}
}

// Register подписывает слушателя на диспетчер.
func (l *QueueBroadcastListener) Register(dispatcher *queue.Dispatcher) {
	dispatcher.Subscribe("ws-broadcast", l.handle)
}

func (l *QueueBroadcastListener) handle(msg dto.QueueUpdateMessage) error {
	if err := l.hub.BroadcastToTopic(websocket.TopicQueue, msg, msg.Action); err != nil {
		return err
	}
	if msg.QueueType == dto.QueueTypeRetry {
		if err := l.hub.BroadcastToTopic(websocket.TopicRetryQueue, msg, msg.Action); err != nil {
			return err
		}
	}

	l.logger.Debug("Событие очереди разослано",
		zap.Uint64("sequence", msg.Sequence),
		zap.Uint64("ticketId", msg.TicketID),
		zap.String("action", msg.Action),
		zap.String("queueType", msg.QueueType),
	)
	return nil
}
