package services

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"triage-system/internal/dto"
	"triage-system/internal/queue"
	"triage-system/internal/repositories"
	"triage-system/pkg/config"
	apperrors "triage-system/pkg/errors"
)

const statsCacheKey = "queue:stats"

type TicketServiceInterface interface {
	CreateTicket(ctx context.Context, d dto.CreateTicketDTO) (dto.TicketDTO, error)
	AssignTicket(ctx context.Context, id uint64, d dto.AssignTicketDTO) (dto.TicketDTO, error)
	CompleteTicket(ctx context.Context, id uint64, d dto.CompleteTicketDTO) (dto.TicketDTO, error)
	FailTicket(ctx context.Context, id uint64, d dto.FailTicketDTO) (dto.TicketDTO, error)
	CancelTicket(ctx context.Context, id uint64) (dto.TicketDTO, error)
	RequeueTicket(ctx context.Context, id uint64) (dto.TicketDTO, error)

	FindTicket(ctx context.Context, id uint64) (dto.TicketDTO, error)
	GetTickets(ctx context.Context, filter dto.TicketFilterDTO) ([]dto.TicketDTO, uint64, error)
	GetQueue(ctx context.Context, lane string) ([]dto.TicketDTO, error)
	GetNextTicket(ctx context.Context) (*dto.TicketDTO, error)
	GetStats(ctx context.Context) (dto.QueueStatsDTO, error)
}

// TicketService - фасад над движком очереди: подтягивает карточку пациента
// перед созданием, отдаёт историю из БД и кеширует статистику в Redis.
// Все мутации идут строго через движок.
type TicketService struct {
	engine            *queue.Engine
	ticketRepository  repositories.TicketRepositoryInterface
	patientRepository repositories.PatientRepositoryInterface
	cache             repositories.CacheRepositoryInterface
	cfg               config.QueueConfig
	logger            *zap.Logger
}

func NewTicketService(
	engine *queue.Engine,
	ticketRepository repositories.TicketRepositoryInterface,
	patientRepository repositories.PatientRepositoryInterface,
	cache repositories.CacheRepositoryInterface,
	cfg config.QueueConfig,
	logger *zap.Logger,
) TicketServiceInterface {
	return &TicketService{
		engine:            engine,
		ticketRepository:  ticketRepository,
		patientRepository: patientRepository,
		cache:             cache,
		cfg:               cfg,
		logger:            logger,
	}
}

func (s *TicketService) CreateTicket(ctx context.Context, d dto.CreateTicketDTO) (dto.TicketDTO, error) {
	patient, err := s.patientRepository.FindPatient(ctx, d.PatientID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return dto.TicketDTO{}, apperrors.NewValidationError("пациент %d не найден в картотеке", d.PatientID)
		}
		s.logger.Error("Ошибка поиска пациента при создании тикета", zap.Uint64("patientId", d.PatientID), zap.Error(err))
		return dto.TicketDTO{}, err
	}

	d.PatientName = patient.Fio
	d.PatientPhone = patient.Phone

	ticket, err := s.engine.Intake(ctx, d)
	if err != nil {
		return dto.TicketDTO{}, err
	}

	s.invalidateStats(ctx)
	s.logger.Info("Тикет создан",
		zap.Uint64("ticketId", ticket.ID),
		zap.String("priority", ticket.Priority),
		zap.Int("position", ticket.QueuePosition.Int),
	)
	return ticket, nil
}

func (s *TicketService) AssignTicket(ctx context.Context, id uint64, d dto.AssignTicketDTO) (dto.TicketDTO, error) {
	ticket, err := s.engine.Assign(ctx, id, d.StaffID)
	if err != nil {
		return dto.TicketDTO{}, err
	}
	s.invalidateStats(ctx)
	return ticket, nil
}

func (s *TicketService) CompleteTicket(ctx context.Context, id uint64, d dto.CompleteTicketDTO) (dto.TicketDTO, error) {
	ticket, err := s.engine.Complete(ctx, id, d)
	if err != nil {
		return dto.TicketDTO{}, err
	}
	s.invalidateStats(ctx)
	return ticket, nil
}

func (s *TicketService) FailTicket(ctx context.Context, id uint64, d dto.FailTicketDTO) (dto.TicketDTO, error) {
	ticket, err := s.engine.MarkFailed(ctx, id, d)
	if err != nil {
		return dto.TicketDTO{}, err
	}
	s.invalidateStats(ctx)
	return ticket, nil
}

func (s *TicketService) CancelTicket(ctx context.Context, id uint64) (dto.TicketDTO, error) {
	ticket, err := s.engine.Cancel(ctx, id)
	if err != nil {
		return dto.TicketDTO{}, err
	}
	s.invalidateStats(ctx)
	return ticket, nil
}

func (s *TicketService) RequeueTicket(ctx context.Context, id uint64) (dto.TicketDTO, error) {
	ticket, err := s.engine.Requeue(ctx, id)
	if err != nil {
		return dto.TicketDTO{}, err
	}
	s.invalidateStats(ctx)
	return ticket, nil
}

// FindTicket сначала спрашивает движок (активное множество), затем историю
// в БД - закрытые тикеты после рестарта живут только там.
func (s *TicketService) FindTicket(ctx context.Context, id uint64) (dto.TicketDTO, error) {
	ticket, err := s.engine.FindTicket(id)
	if err == nil {
		return ticket, nil
	}
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		return dto.TicketDTO{}, err
	}

	stored, repoErr := s.ticketRepository.FindTicket(ctx, id)
	if repoErr != nil {
		if errors.Is(repoErr, apperrors.ErrNotFound) {
			return dto.TicketDTO{}, err
		}
		return dto.TicketDTO{}, repoErr
	}
	return dto.TicketToDTO(stored, 0), nil
}

func (s *TicketService) GetTickets(ctx context.Context, filter dto.TicketFilterDTO) ([]dto.TicketDTO, uint64, error) {
	tickets, total, err := s.ticketRepository.ListTickets(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]dto.TicketDTO, 0, len(tickets))
	for i := range tickets {
		out = append(out, dto.TicketToDTO(&tickets[i], 0))
	}
	return out, total, nil
}

func (s *TicketService) GetQueue(ctx context.Context, lane string) ([]dto.TicketDTO, error) {
	switch queue.Lane(lane) {
	case queue.LanePrimary, queue.LaneRetry:
		return s.engine.QueueSnapshot(queue.Lane(lane)), nil
	default:
		return nil, apperrors.NewValidationError("неизвестная очередь: %q", lane)
	}
}

func (s *TicketService) GetNextTicket(ctx context.Context) (*dto.TicketDTO, error) {
	ticket, ok := s.engine.NextTicket()
	if !ok {
		return nil, nil
	}
	return &ticket, nil
}

// GetStats отдаёт счётчики очереди, кешируя их в Redis на StatsCacheTTL.
// Кеш сбрасывается при каждой мутации, TTL страхует от протухания.
func (s *TicketService) GetStats(ctx context.Context) (dto.QueueStatsDTO, error) {
	if cached, err := s.cache.Get(ctx, statsCacheKey); err == nil {
		var stats dto.QueueStatsDTO
		if err := json.Unmarshal([]byte(cached), &stats); err == nil {
			return stats, nil
		}
	}

	stats := s.engine.Stats()
	if payload, err := json.Marshal(stats); err == nil {
		if err := s.cache.Set(ctx, statsCacheKey, payload, s.cfg.StatsCacheTTL); err != nil {
			s.logger.Warn("Не удалось закешировать статистику очереди", zap.Error(err))
		}
	}
	return stats, nil
}

func (s *TicketService) invalidateStats(ctx context.Context) {
	if err := s.cache.Del(ctx, statsCacheKey); err != nil {
		s.logger.Warn("Не удалось сбросить кеш статистики", zap.Error(err))
	}
}
