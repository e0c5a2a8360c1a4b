package services

import (
	"context"

	"github.com/aarondl/null/v8"
	"go.uber.org/zap"

	"triage-system/internal/dto"
	"triage-system/pkg/constants"
	apperrors "triage-system/pkg/errors"
)

// TicketFlow - переходы жизненного цикла, которые дергает телефония.
// Выделен в интерфейс, чтобы сервис тестировался без движка.
type TicketFlow interface {
	FindTicket(id uint64) (dto.TicketDTO, error)
	Complete(ctx context.Context, id uint64, d dto.CompleteTicketDTO) (dto.TicketDTO, error)
	MarkFailed(ctx context.Context, id uint64, d dto.FailTicketDTO) (dto.TicketDTO, error)
}

// CallService переводит исходы звонков телефонии в переходы тикета:
// дозвонились - тикет решён, не дозвонились - неудачная попытка.
type CallService struct {
	flow   TicketFlow
	logger *zap.Logger
}

func NewCallService(flow TicketFlow, logger *zap.Logger) *CallService {
	return &CallService{flow: flow, logger: logger}
}

func (s *CallService) HandleCallEvent(ctx context.Context, d dto.CallEventDTO) (dto.TicketDTO, error) {
	switch d.Outcome {
	case constants.CallOutcomeAnswered:
		ticket, err := s.flow.FindTicket(d.TicketID)
		if err != nil {
			return dto.TicketDTO{}, err
		}
		if !ticket.AssignedToID.Valid {
			return dto.TicketDTO{}, apperrors.NewInvalidStateError(
				"тикет %d не назначен, исход ANSWERED невозможен", d.TicketID)
		}
		out, err := s.flow.Complete(ctx, d.TicketID, dto.CompleteTicketDTO{
			ResolvedByID: ticket.AssignedToID.Uint64,
			CallID:       null.StringFrom(d.CallID),
		})
		if err != nil {
			return dto.TicketDTO{}, err
		}
		s.logger.Info("Тикет решён по успешному звонку",
			zap.Uint64("ticketId", d.TicketID),
			zap.String("callId", d.CallID),
		)
		return out, nil

	case constants.CallOutcomeBusy, constants.CallOutcomeNoAnswer, constants.CallOutcomeFailed:
		out, err := s.flow.MarkFailed(ctx, d.TicketID, dto.FailTicketDTO{
			CallID: null.StringFrom(d.CallID),
		})
		if err != nil {
			return dto.TicketDTO{}, err
		}
		s.logger.Info("Неудачный дозвон по тикету",
			zap.Uint64("ticketId", d.TicketID),
			zap.String("outcome", d.Outcome),
			zap.Int("retryCount", out.RetryCount),
			zap.Bool("escalated", out.Escalated),
		)
		return out, nil

	default:
		return dto.TicketDTO{}, apperrors.NewValidationError("неизвестный исход звонка: %q", d.Outcome)
	}
}
