package dto

import (
	"github.com/aarondl/null/v8"

	"triage-system/internal/entities"
)

// CreateTicketDTO - входные данные intake. Вызывается внешним API-слоем
// уже после аутентификации и rate-limit'а.
type CreateTicketDTO struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required"`
	PatientID   uint64 `json:"patient_id" validate:"required"`
	Priority    string `json:"priority" validate:"required,oneof=HIGH MEDIUM LOW"`
	Category    string `json:"category" validate:"omitempty,oneof=MEDICAL_QUERY APPOINTMENT PRESCRIPTION TECHNICAL OTHER"`
	CreatedByID uint64 `json:"created_by_id" validate:"required"`

	// Денормализуется сервисом из карточки пациента, снаружи не принимается.
	PatientName  string `json:"-"`
	PatientPhone string `json:"-"`
}

type AssignTicketDTO struct {
	StaffID uint64 `json:"staff_id" validate:"required"`
}

type CompleteTicketDTO struct {
	ResolvedByID uint64      `json:"resolved_by_id" validate:"required"`
	CallID       null.String `json:"call_id"`
}

type FailTicketDTO struct {
	CallID null.String `json:"call_id"`
}

// TicketDTO - представление тикета для внешнего слоя.
type TicketDTO struct {
	ID            uint64      `json:"id"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	PatientID     uint64      `json:"patient_id"`
	PatientName   string      `json:"patient_name"`
	PatientPhone  string      `json:"patient_phone"`
	Priority      string      `json:"priority"`
	Category      string      `json:"category"`
	Status        string      `json:"status"`
	Lane          null.String `json:"lane"`
	RetryCount    int         `json:"retry_count"`
	Escalated     bool        `json:"escalated"`
	QueuePosition null.Int    `json:"queue_position"`
	AssignedToID  null.Uint64 `json:"assigned_to_id"`
	CreatedByID   uint64      `json:"created_by_id"`
	ResolvedByID  null.Uint64 `json:"resolved_by_id"`
	CallID        null.String `json:"call_id"`
	CreatedAt     string      `json:"created_at"`
	UpdatedAt     string      `json:"updated_at"`
	ResolvedAt    null.String `json:"resolved_at"`
}

// TicketFilterDTO - фильтры списка тикетов из query-параметров.
type TicketFilterDTO struct {
	Status    string `query:"status" validate:"omitempty,oneof=OPEN IN_PROGRESS CLOSED"`
	Priority  string `query:"priority" validate:"omitempty,oneof=HIGH MEDIUM LOW"`
	Lane      string `query:"lane" validate:"omitempty,oneof=QUEUE RETRY"`
	Category     string `query:"category" validate:"omitempty,oneof=MEDICAL_QUERY APPOINTMENT PRESCRIPTION TECHNICAL OTHER"`
	PatientID    uint64 `query:"patient_id"`
	AssignedToID uint64 `query:"assigned_to_id"`
	CreatedByID  uint64 `query:"created_by_id"`
	Limit        uint64 `query:"limit"`
	Offset       uint64 `query:"offset"`
}

// Conditions - заполненные фильтры в виде колонка→значение.
func (f TicketFilterDTO) Conditions() map[string]interface{} {
	out := make(map[string]interface{})
	if f.Status != "" {
		out["status"] = f.Status
	}
	if f.Priority != "" {
		out["priority"] = f.Priority
	}
	if f.Lane != "" {
		out["lane"] = f.Lane
	}
	if f.Category != "" {
		out["category"] = f.Category
	}
	if f.PatientID != 0 {
		out["patient_id"] = f.PatientID
	}
	if f.AssignedToID != 0 {
		out["assigned_to_id"] = f.AssignedToID
	}
	if f.CreatedByID != 0 {
		out["created_by_id"] = f.CreatedByID
	}
	return out
}

// QueueStatsDTO - счётчики для дашборда.
type QueueStatsDTO struct {
	Open         int `json:"open"`
	InProgress   int `json:"in_progress"`
	HighPriority int `json:"high_priority"`
	Queue        int `json:"queue"`
	Retry        int `json:"retry"`
}

const timeLayout = "2006-01-02 15:04:05"

// TicketToDTO собирает DTO из сущности; позиция передается отдельно,
// потому что известна только движку очереди (0 - вне очереди).
func TicketToDTO(t *entities.Ticket, position int) TicketDTO {
	out := TicketDTO{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		PatientID:    t.PatientID,
		PatientName:  t.PatientName,
		PatientPhone: t.PatientPhone,
		Priority:     t.Priority,
		Category:     t.Category,
		Status:       t.Status,
		RetryCount:   t.RetryCount,
		Escalated:    t.Escalated,
		CreatedByID:  t.CreatedByID,
		CreatedAt:    t.CreatedAt.Local().Format(timeLayout),
		UpdatedAt:    t.UpdatedAt.Local().Format(timeLayout),
	}
	if t.Status != "CLOSED" && t.Lane != "" {
		out.Lane = null.StringFrom(t.Lane)
	}
	if position > 0 {
		out.QueuePosition = null.IntFrom(position)
	}
	if t.AssignedToID != nil {
		out.AssignedToID = null.Uint64From(*t.AssignedToID)
	}
	if t.ResolvedByID != nil {
		out.ResolvedByID = null.Uint64From(*t.ResolvedByID)
	}
	if t.CallID != nil {
		out.CallID = null.StringFrom(*t.CallID)
	}
	if t.ResolvedAt != nil {
		out.ResolvedAt = null.StringFrom(t.ResolvedAt.Local().Format(timeLayout))
	}
	return out
}
