package dto

import (
	"time"

	"triage-system/internal/entities"
)

// Действия в QueueUpdateMessage.
const (
	ActionAdd      = "ADD"      // тикет добавлен в очередь
	ActionRemove   = "REMOVE"   // тикет убран из очереди
	ActionUpdate   = "UPDATE"   // данные/позиция тикета изменились
	ActionCall     = "CALL"     // тикет взят врачом, пациента вызывают
	ActionComplete = "COMPLETE" // тикет закрыт
)

// Типы очередей.
const (
	QueueTypeMain  = "QUEUE" // основная очередь ожидания
	QueueTypeRetry = "RETRY" // повторная очередь после неудачного дозвона
)

// QueueUpdateMessage - неизменяемое событие об одном зафиксированном
// изменении очереди. Ровно одно сообщение на мутацию затронутого тикета;
// Sequence - глобальный монотонный номер, проставляет диспетчер.
type QueueUpdateMessage struct {
	Sequence  uint64 `json:"sequence"`
	TicketID  uint64 `json:"ticketId"`
	Action    string `json:"action"`
	QueueType string `json:"queueType"`
	Timestamp int64  `json:"timestamp"` // unix millis

	// Данные пациента
	PatientName  string `json:"patientName,omitempty"`
	PatientPhone string `json:"patientPhone,omitempty"`

	// Снимок тикета
	Priority      string `json:"priority,omitempty"`
	Status        string `json:"status,omitempty"`
	RetryCount    int    `json:"retryCount"`
	QueuePosition int    `json:"queuePosition,omitempty"`

	// Человекочитаемый комментарий к событию
	Message string `json:"message,omitempty"`
}

func baseQueueMessage(t *entities.Ticket, action, queueType string, position int, message string) QueueUpdateMessage {
	return QueueUpdateMessage{
		TicketID:      t.ID,
		Action:        action,
		QueueType:     queueType,
		Timestamp:     time.Now().UnixMilli(),
		PatientName:   t.PatientName,
		PatientPhone:  t.PatientPhone,
		Priority:      t.Priority,
		Status:        t.Status,
		RetryCount:    t.RetryCount,
		QueuePosition: position,
		Message:       message,
	}
}

// TicketAdded - новый тикет встал в очередь.
func TicketAdded(t *entities.Ticket, queueType string, position int) QueueUpdateMessage {
	return baseQueueMessage(t, ActionAdd, queueType, position, "Тикет добавлен в очередь")
}

// TicketRemoved - тикет убран из очереди (перевод между очередями).
func TicketRemoved(t *entities.Ticket, queueType string) QueueUpdateMessage {
	return baseQueueMessage(t, ActionRemove, queueType, 0, "Тикет убран из очереди")
}

// TicketCalled - врач взял тикет, пациента вызывают. queueType - очередь,
// которую тикет при этом покинул.
func TicketCalled(t *entities.Ticket, queueType string) QueueUpdateMessage {
	return baseQueueMessage(t, ActionCall, queueType, 0, "Вызываем пациента")
}

// TicketUpdated - изменились статус/позиция/счётчик дозвонов.
func TicketUpdated(t *entities.Ticket, queueType string, position int) QueueUpdateMessage {
	return baseQueueMessage(t, ActionUpdate, queueType, position, "Данные тикета обновлены")
}

// TicketCompleted - тикет закрыт (решён, отменён или эскалирован).
func TicketCompleted(t *entities.Ticket, queueType string) QueueUpdateMessage {
	msg := "Тикет закрыт"
	if t.Escalated {
		msg = "Тикет закрыт с эскалацией: не дозвонились"
	}
	return baseQueueMessage(t, ActionComplete, queueType, 0, msg)
}
