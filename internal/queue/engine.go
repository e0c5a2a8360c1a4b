package queue

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"triage-system/internal/dto"
	"triage-system/internal/entities"
	"triage-system/pkg/config"
	"triage-system/pkg/constants"
	apperrors "triage-system/pkg/errors"
)

// Engine - единственный мутатор состояния тикетов и их принадлежности к
// очередям. Все мутации проходят через одну критическую секцию: изменение
// Store, пересчёт позиций сдвинутых соседей и сборка сообщений происходят
// атомарно. Внутри секции нет никакого I/O - журнал и диспетчер только
// принимают данные в свои буферы, доставка идёт в их горутинах.
type Engine struct {
	// RWMutex: мутации эксклюзивны, чтения идут параллельно друг другу,
	// но никогда не видят полуприменённой мутации.
	mu      sync.RWMutex
	store   *Store
	calc    *PositionCalculator
	tickets map[uint64]*entities.Ticket
	nextID  uint64

	dispatcher *Dispatcher
	journal    *Journal
	maxRetries int
	logger     *zap.Logger
}

func NewEngine(
	store *Store,
	dispatcher *Dispatcher,
	journal *Journal,
	cfg config.QueueConfig,
	logger *zap.Logger,
) *Engine {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Engine{
		store:      store,
		calc:       NewPositionCalculator(store),
		tickets:    make(map[uint64]*entities.Ticket),
		nextID:     1,
		dispatcher: dispatcher,
		journal:    journal,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Rebuild восстанавливает активное множество после рестарта. Тикеты приходят
// из хранилища уже упорядоченными по (приоритет, created_at), поэтому простое
// проигрывание Insert восстанавливает исходный порядок. maxID - наибольший
// когда-либо выданный ID, включая закрытые тикеты из истории.
func (e *Engine) Rebuild(ctx context.Context, tickets []entities.Ticket, maxID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range tickets {
		t := tickets[i]
		if constants.IsFinalStatus(t.Status) {
			continue
		}
		lane := Lane(t.Lane)
		if lane != LanePrimary && lane != LaneRetry {
			lane = LanePrimary
			t.Lane = string(lane)
		}
		e.tickets[t.ID] = &t

		// В работе у врача - остаётся адресуемым, но вне очередей.
		if t.Status == constants.StatusInProgress {
			continue
		}
		if _, _, err := e.store.Insert(t.ID, constants.PriorityRank(t.Priority), lane); err != nil {
			return err
		}
	}
	if maxID >= e.nextID {
		e.nextID = maxID + 1
	}

	e.logger.Info("Очередь восстановлена из хранилища",
		zap.Int("tickets", len(e.tickets)),
		zap.Int("queue", e.store.Len(LanePrimary)),
		zap.Int("retry", e.store.Len(LaneRetry)),
	)
	return nil
}

// Intake создает тикет и ставит его в основную очередь.
func (e *Engine) Intake(ctx context.Context, d dto.CreateTicketDTO) (dto.TicketDTO, error) {
	if err := validateIntake(d); err != nil {
		return dto.TicketDTO{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	t := &entities.Ticket{
		ID:           e.nextID,
		Title:        strings.TrimSpace(d.Title),
		Description:  strings.TrimSpace(d.Description),
		PatientID:    d.PatientID,
		PatientName:  d.PatientName,
		PatientPhone: d.PatientPhone,
		Priority:     d.Priority,
		Category:     d.Category,
		Status:       constants.StatusOpen,
		Lane:         string(LanePrimary),
		CreatedByID:  d.CreatedByID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if t.Category == "" {
		t.Category = constants.CategoryOther
	}
	e.nextID++
	e.tickets[t.ID] = t

	pos, displaced, err := e.store.Insert(t.ID, constants.PriorityRank(t.Priority), LanePrimary)
	if err != nil {
		delete(e.tickets, t.ID)
		return dto.TicketDTO{}, err
	}

	msgs := append(
		[]dto.QueueUpdateMessage{dto.TicketAdded(t, dto.QueueTypeMain, pos)},
		e.displacedUpdates(displaced, dto.QueueTypeMain)...,
	)
	e.commit(t, msgs)

	return dto.TicketToDTO(t, pos), nil
}

// Assign передаёт тикет врачу: тикет уходит из видимой очереди, но остаётся
// адресуемым по ID.
func (e *Engine) Assign(ctx context.Context, ticketID, staffID uint64) (dto.TicketDTO, error) {
	if staffID == 0 {
		return dto.TicketDTO{}, apperrors.NewValidationError("не указан врач для назначения")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tickets[ticketID]
	if !ok {
		return dto.TicketDTO{}, apperrors.NewNotFoundError("тикет %d не найден", ticketID)
	}
	if t.Status != constants.StatusOpen {
		return dto.TicketDTO{}, apperrors.NewInvalidStateError(
			"тикет %d нельзя взять в работу из статуса %s", ticketID, t.Status)
	}

	lane, displaced, err := e.store.Remove(ticketID)
	if err != nil {
		return dto.TicketDTO{}, err
	}

	t.Status = constants.StatusInProgress
	t.AssignedToID = &staffID
	t.Lane = ""
	t.UpdatedAt = time.Now().UTC()

	msgs := append(
		[]dto.QueueUpdateMessage{dto.TicketCalled(t, string(lane))},
		e.displacedUpdates(displaced, string(lane))...,
	)
	e.commit(t, msgs)

	return dto.TicketToDTO(t, 0), nil
}

// MarkFailed фиксирует неудачный дозвон. Пока счётчик меньше лимита - тикет
// возвращается в повторную очередь со свежим порядковым номером; на лимите
// закрывается с эскалацией и в очереди больше не попадает.
func (e *Engine) MarkFailed(ctx context.Context, ticketID uint64, d dto.FailTicketDTO) (dto.TicketDTO, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tickets[ticketID]
	if !ok {
		return dto.TicketDTO{}, apperrors.NewNotFoundError("тикет %d не найден", ticketID)
	}
	if t.Status == constants.StatusClosed {
		return dto.TicketDTO{}, apperrors.NewConflictError(
			"тикет %d уже закрыт, исход звонка отклонён", ticketID)
	}
	if t.Status != constants.StatusInProgress {
		return dto.TicketDTO{}, apperrors.NewInvalidStateError(
			"исход звонка возможен только для тикета в работе, текущий статус %s", t.Status)
	}

	t.RetryCount++
	t.UpdatedAt = time.Now().UTC()
	if d.CallID.Valid {
		callID := d.CallID.String
		t.CallID = &callID
	}

	// Детерминированная эскалация: ровно на maxRetries-м неудачном дозвоне.
	if t.RetryCount >= e.maxRetries {
		now := time.Now().UTC()
		t.Status = constants.StatusClosed
		t.Escalated = true
		t.ResolvedAt = &now
		t.AssignedToID = nil
		t.Lane = ""

		e.commit(t, []dto.QueueUpdateMessage{dto.TicketCompleted(t, dto.QueueTypeRetry)})
		e.logger.Warn("Тикет закрыт с эскалацией: исчерпан лимит дозвонов",
			zap.Uint64("ticketId", t.ID),
			zap.Int("retryCount", t.RetryCount),
		)
		return dto.TicketToDTO(t, 0), nil
	}

	t.Status = constants.StatusOpen
	t.AssignedToID = nil
	t.Lane = string(LaneRetry)

	pos, displaced, err := e.store.Insert(t.ID, constants.PriorityRank(t.Priority), LaneRetry)
	if err != nil {
		return dto.TicketDTO{}, err
	}

	msgs := append(
		[]dto.QueueUpdateMessage{dto.TicketUpdated(t, dto.QueueTypeRetry, pos)},
		e.displacedUpdates(displaced, dto.QueueTypeRetry)...,
	)
	e.commit(t, msgs)

	return dto.TicketToDTO(t, pos), nil
}

// Complete закрывает тикет как решённый. Повтор того же терминального
// перехода - конфликт, а не тихий успех.
func (e *Engine) Complete(ctx context.Context, ticketID uint64, d dto.CompleteTicketDTO) (dto.TicketDTO, error) {
	if d.ResolvedByID == 0 {
		return dto.TicketDTO{}, apperrors.NewValidationError("не указано, кто решил тикет")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tickets[ticketID]
	if !ok {
		return dto.TicketDTO{}, apperrors.NewNotFoundError("тикет %d не найден", ticketID)
	}
	if t.Status == constants.StatusClosed {
		return dto.TicketDTO{}, apperrors.NewConflictError("тикет %d уже закрыт", ticketID)
	}
	if t.Status != constants.StatusInProgress {
		return dto.TicketDTO{}, apperrors.NewInvalidStateError(
			"завершить можно только тикет в работе, текущий статус %s", t.Status)
	}

	now := time.Now().UTC()
	t.Status = constants.StatusClosed
	t.ResolvedByID = &d.ResolvedByID
	t.ResolvedAt = &now
	t.UpdatedAt = now
	t.Lane = ""
	if d.CallID.Valid {
		callID := d.CallID.String
		t.CallID = &callID
	}

	e.commit(t, []dto.QueueUpdateMessage{dto.TicketCompleted(t, dto.QueueTypeMain)})

	return dto.TicketToDTO(t, 0), nil
}

// Cancel закрывает тикет без решения. Допустим из OPEN и IN_PROGRESS.
func (e *Engine) Cancel(ctx context.Context, ticketID uint64) (dto.TicketDTO, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tickets[ticketID]
	if !ok {
		return dto.TicketDTO{}, apperrors.NewNotFoundError("тикет %d не найден", ticketID)
	}
	if t.Status == constants.StatusClosed {
		return dto.TicketDTO{}, apperrors.NewConflictError("тикет %d уже закрыт", ticketID)
	}

	queueType := dto.QueueTypeMain
	var displaced []uint64
	if t.Status == constants.StatusOpen {
		lane, moved, err := e.store.Remove(ticketID)
		if err != nil {
			return dto.TicketDTO{}, err
		}
		queueType = string(lane)
		displaced = moved
	}

	now := time.Now().UTC()
	t.Status = constants.StatusClosed
	t.ResolvedAt = &now
	t.UpdatedAt = now
	t.Lane = ""

	msgs := append(
		[]dto.QueueUpdateMessage{dto.TicketCompleted(t, queueType)},
		e.displacedUpdates(displaced, queueType)...,
	)
	e.commit(t, msgs)

	return dto.TicketToDTO(t, 0), nil
}

// Requeue возвращает тикет из повторной очереди в основную, счётчик дозвонов
// сохраняется для истории.
func (e *Engine) Requeue(ctx context.Context, ticketID uint64) (dto.TicketDTO, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tickets[ticketID]
	if !ok {
		return dto.TicketDTO{}, apperrors.NewNotFoundError("тикет %d не найден", ticketID)
	}
	if t.Status != constants.StatusOpen || t.Lane != string(LaneRetry) {
		return dto.TicketDTO{}, apperrors.NewInvalidStateError(
			"в основную очередь можно вернуть только тикет из повторной")
	}

	res, err := e.store.MoveLane(ticketID, LanePrimary)
	if err != nil {
		return dto.TicketDTO{}, err
	}

	t.Lane = string(LanePrimary)
	t.UpdatedAt = time.Now().UTC()

	msgs := []dto.QueueUpdateMessage{
		dto.TicketRemoved(t, dto.QueueTypeRetry),
		dto.TicketAdded(t, dto.QueueTypeMain, res.Position),
	}
	msgs = append(msgs, e.displacedUpdates(res.DisplacedFrom, dto.QueueTypeRetry)...)
	msgs = append(msgs, e.displacedUpdates(res.DisplacedTo, dto.QueueTypeMain)...)
	e.commit(t, msgs)

	return dto.TicketToDTO(t, res.Position), nil
}

// --- чтения ---

// FindTicket возвращает тикет из активного множества.
func (e *Engine) FindTicket(ticketID uint64) (dto.TicketDTO, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.tickets[ticketID]
	if !ok {
		return dto.TicketDTO{}, apperrors.NewNotFoundError("тикет %d не найден", ticketID)
	}
	return dto.TicketToDTO(t, e.calc.Position(ticketID)), nil
}

// QueueSnapshot - упорядоченный снимок очереди с живыми позициями.
func (e *Engine) QueueSnapshot(lane Lane) []dto.TicketDTO {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := e.store.Snapshot(lane)
	out := make([]dto.TicketDTO, 0, len(ids))
	for i, id := range ids {
		if t, ok := e.tickets[id]; ok {
			out = append(out, dto.TicketToDTO(t, i+1))
		}
	}
	return out
}

// NextTicket - голова сводного порядка обеих очередей; им пользуется
// регистратура при выборе следующего пациента.
func (e *Engine) NextTicket() (dto.TicketDTO, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := e.store.Combined()
	if len(ids) == 0 {
		return dto.TicketDTO{}, false
	}
	t, ok := e.tickets[ids[0]]
	if !ok {
		return dto.TicketDTO{}, false
	}
	return dto.TicketToDTO(t, e.calc.Position(t.ID)), true
}

// Stats - счётчики активного множества для дашборда.
func (e *Engine) Stats() dto.QueueStatsDTO {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := dto.QueueStatsDTO{
		Queue: e.store.Len(LanePrimary),
		Retry: e.store.Len(LaneRetry),
	}
	for _, t := range e.tickets {
		switch t.Status {
		case constants.StatusOpen:
			stats.Open++
		case constants.StatusInProgress:
			stats.InProgress++
		}
		if t.Status != constants.StatusClosed && t.Priority == constants.PriorityHigh {
			stats.HighPriority++
		}
	}
	return stats
}

// --- внутреннее ---

// commit пересылает зафиксированный переход в журнал и диспетчер.
// Вызывается под e.mu: обе стороны только буферизуют, поэтому порядок
// коммитов совпадает с порядком доставки.
func (e *Engine) commit(t *entities.Ticket, msgs []dto.QueueUpdateMessage) {
	e.journal.Record(cloneTicket(t))
	e.dispatcher.Publish(msgs...)
}

// displacedUpdates - по UPDATE-сообщению на каждого соседа, чья позиция
// изменилась из-за мутации.
func (e *Engine) displacedUpdates(ids []uint64, queueType string) []dto.QueueUpdateMessage {
	if len(ids) == 0 {
		return nil
	}
	out := make([]dto.QueueUpdateMessage, 0, len(ids))
	for _, id := range ids {
		t, ok := e.tickets[id]
		if !ok {
			continue
		}
		pos, err := e.store.PositionOf(id)
		if err != nil {
			continue
		}
		out = append(out, dto.TicketUpdated(t, queueType, pos))
	}
	return out
}

func validateIntake(d dto.CreateTicketDTO) error {
	if strings.TrimSpace(d.Title) == "" {
		return apperrors.NewValidationError("заголовок тикета обязателен")
	}
	if strings.TrimSpace(d.Description) == "" {
		return apperrors.NewValidationError("описание тикета обязательно")
	}
	if d.PatientID == 0 {
		return apperrors.NewValidationError("не указан пациент")
	}
	if !constants.IsValidPriority(d.Priority) {
		return apperrors.NewValidationError("недопустимый приоритет: %q", d.Priority)
	}
	if d.CreatedByID == 0 {
		return apperrors.NewValidationError("не указан автор тикета")
	}
	return nil
}

func cloneTicket(t *entities.Ticket) entities.Ticket {
	out := *t
	if t.AssignedToID != nil {
		v := *t.AssignedToID
		out.AssignedToID = &v
	}
	if t.ResolvedByID != nil {
		v := *t.ResolvedByID
		out.ResolvedByID = &v
	}
	if t.CallID != nil {
		v := *t.CallID
		out.CallID = &v
	}
	if t.ResolvedAt != nil {
		v := *t.ResolvedAt
		out.ResolvedAt = &v
	}
	return out
}
