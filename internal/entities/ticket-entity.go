package entities

import (
	"time"
)

// Ticket - заявка на консультацию/эскалацию. Пока тикет активен, он
// находится ровно в одной из двух очередей (Lane); после закрытия
// очередь для него не определена.
type Ticket struct {
	ID           uint64     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	PatientID    uint64     `json:"patient_id"`
	PatientName  string     `json:"patient_name"`
	PatientPhone string     `json:"patient_phone"`
	Priority     string     `json:"priority"` // HIGH, MEDIUM, LOW
	Category     string     `json:"category"`
	Status       string     `json:"status"` // OPEN, IN_PROGRESS, CLOSED
	Lane         string     `json:"lane"`   // QUEUE, RETRY
	RetryCount   int        `json:"retry_count"`
	Escalated    bool       `json:"escalated"`
	AssignedToID *uint64    `json:"assigned_to_id"`
	CreatedByID  uint64     `json:"created_by_id"`
	ResolvedByID *uint64    `json:"resolved_by_id"`
	CallID       *string    `json:"call_id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ResolvedAt   *time.Time `json:"resolved_at"`
}
