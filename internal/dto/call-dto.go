package dto

// CallEventDTO - вебхук от телефонии: исход попытки дозвона по тикету.
// Телефония сама решает, когда перезванивать; ядро только фиксирует исход.
type CallEventDTO struct {
	TicketID uint64 `json:"ticket_id" validate:"required"`
	CallID   string `json:"call_id" validate:"required"`
	Outcome  string `json:"outcome" validate:"required,oneof=ANSWERED BUSY NO_ANSWER FAILED"`
}
