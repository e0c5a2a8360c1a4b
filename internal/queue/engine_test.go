package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/aarondl/null/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"triage-system/internal/dto"
	"triage-system/internal/entities"
	"triage-system/pkg/config"
	"triage-system/pkg/constants"
	apperrors "triage-system/pkg/errors"
)

// memoryRecorder - хранилище-заглушка: запоминает последний снимок каждого
// тикета, как это делает настоящий репозиторий.
type memoryRecorder struct {
	mu      sync.Mutex
	tickets map[uint64]entities.Ticket
	saves   int
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{tickets: make(map[uint64]entities.Ticket)}
}

func (r *memoryRecorder) SaveTicket(ctx context.Context, t entities.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[t.ID] = t
	r.saves++
	return nil
}

func (r *memoryRecorder) get(id uint64) (entities.Ticket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	return t, ok
}

// collector копит доставленные события для проверки порядка.
type collector struct {
	mu   sync.Mutex
	msgs []dto.QueueUpdateMessage
}

func (c *collector) receive(msg dto.QueueUpdateMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) all() []dto.QueueUpdateMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]dto.QueueUpdateMessage, len(c.msgs))
	copy(out, c.msgs)
	return out
}

type engineFixture struct {
	engine     *Engine
	dispatcher *Dispatcher
	journal    *Journal
	recorder   *memoryRecorder
	events     *collector
}

func newEngineFixture(t *testing.T, cfg config.QueueConfig) *engineFixture {
	t.Helper()
	logger := zap.NewNop()

	recorder := newMemoryRecorder()
	events := &collector{}

	dispatcher := NewDispatcher(logger)
	dispatcher.Subscribe("test-collector", events.receive)
	journal := NewJournal(recorder, logger)

	store := NewStore(cfg.RetryPrecedence)
	engine := NewEngine(store, dispatcher, journal, cfg, logger)

	t.Cleanup(func() {
		dispatcher.Close()
		journal.Close()
	})

	return &engineFixture{
		engine:     engine,
		dispatcher: dispatcher,
		journal:    journal,
		recorder:   recorder,
		events:     events,
	}
}

func defaultQueueConfig() config.QueueConfig {
	return config.QueueConfig{MaxRetries: 3, RetryPrecedence: true}
}

func ticketFixture(id uint64) entities.Ticket {
	return entities.Ticket{
		ID:          id,
		Title:       "Тестовый тикет",
		PatientID:   1,
		Priority:    "MEDIUM",
		Status:      constants.StatusOpen,
		Lane:        "QUEUE",
		CreatedByID: 1,
	}
}

func intakeDTO(title, priority string) dto.CreateTicketDTO {
	return dto.CreateTicketDTO{
		Title:        title,
		Description:  "Пациент просит перезвонить",
		PatientID:    7,
		Priority:     priority,
		CreatedByID:  1,
		PatientName:  "Иванов Иван",
		PatientPhone: "+992900000001",
	}
}

func TestEngine_IntakeValidation(t *testing.T) {
	f := newEngineFixture(t, defaultQueueConfig())
	ctx := context.Background()

	cases := []struct {
		name string
		d    dto.CreateTicketDTO
	}{
		{"пустой заголовок", func() dto.CreateTicketDTO { d := intakeDTO("", "HIGH"); return d }()},
		{"пустое описание", func() dto.CreateTicketDTO {
			d := intakeDTO("Запись", "HIGH")
			d.Description = "  "
			return d
		}()},
		{"нет пациента", func() dto.CreateTicketDTO {
			d := intakeDTO("Запись", "HIGH")
			d.PatientID = 0
			return d
		}()},
		{"неизвестный приоритет", intakeDTO("Запись", "URGENT")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Intake(ctx, tc.d)
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.KindValidation),
				"ожидалась ошибка валидации, получено: %v", err)
		})
	}

	f.dispatcher.Flush()
	assert.Empty(t, f.events.all(), "отклонённая мутация не порождает событий")
}

func TestEngine_IntakeAssignsPositionByPriority(t *testing.T) {
	f := newEngineFixture(t, defaultQueueConfig())
	ctx := context.Background()

	low, err := f.engine.Intake(ctx, intakeDTO("Низкий", "LOW"))
	require.NoError(t, err)
	assert.Equal(t, 1, low.QueuePosition.Int)

	med, err := f.engine.Intake(ctx, intakeDTO("Средний", "MEDIUM"))
	require.NoError(t, err)
	assert.Equal(t, 1, med.QueuePosition.Int, "средний приоритет обгоняет низкий")

	high, err := f.engine.Intake(ctx, intakeDTO("Высокий", "HIGH"))
	require.NoError(t, err)
	assert.Equal(t, 1, high.QueuePosition.Int)

	snapshot := f.engine.QueueSnapshot(LanePrimary)
	require.Len(t, snapshot, 3)
	assert.Equal(t, high.ID, snapshot[0].ID)
	assert.Equal(t, med.ID, snapshot[1].ID)
	assert.Equal(t, low.ID, snapshot[2].ID)

	// Вставка в голову сдвинула соседей - они получили UPDATE с новой позицией.
	f.dispatcher.Flush()
	msgs := f.events.all()
	var updates []dto.QueueUpdateMessage
	for _, m := range msgs {
		if m.Action == dto.ActionUpdate {
			updates = append(updates, m)
		}
	}
	require.NotEmpty(t, updates, "сдвинутые соседи должны получить UPDATE")
	for _, u := range updates {
		assert.NotZero(t, u.QueuePosition)
	}
}

// Сценарий из жизни регистратуры: два тикета, первый уходит врачу, дозвон
// не удался, тикет возвращается в повторную очередь и обслуживается раньше
// второго, затем решается.
func TestEngine_LifecycleWithRetry(t *testing.T) {
	f := newEngineFixture(t, defaultQueueConfig())
	ctx := context.Background()

	first, err := f.engine.Intake(ctx, intakeDTO("Первый", "MEDIUM"))
	require.NoError(t, err)
	second, err := f.engine.Intake(ctx, intakeDTO("Второй", "MEDIUM"))
	require.NoError(t, err)

	// Врач берёт первый тикет.
	assigned, err := f.engine.Assign(ctx, first.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusInProgress, assigned.Status)
	assert.Equal(t, uint64(42), assigned.AssignedToID.Uint64)
	assert.False(t, assigned.QueuePosition.Valid, "взятый в работу тикет вне очередей")

	// Второй поднялся на первое место.
	pos := f.engine.QueueSnapshot(LanePrimary)
	require.Len(t, pos, 1)
	assert.Equal(t, second.ID, pos[0].ID)
	assert.Equal(t, 1, pos[0].QueuePosition.Int)

	// Дозвон не удался - тикет в повторной очереди.
	failed, err := f.engine.MarkFailed(ctx, first.ID, dto.FailTicketDTO{CallID: null.StringFrom("call-1")})
	require.NoError(t, err)
	assert.Equal(t, constants.StatusOpen, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Equal(t, string(LaneRetry), failed.Lane.String)
	assert.False(t, failed.AssignedToID.Valid, "назначение снимается при возврате в очередь")

	// В сводном порядке вернувшийся тикет впереди второго.
	next, ok := f.engine.NextTicket()
	require.True(t, ok)
	assert.Equal(t, first.ID, next.ID, "повторная очередь обслуживается раньше")

	// Второй заход: взяли, дозвонились, решили.
	_, err = f.engine.Assign(ctx, first.ID, 42)
	require.NoError(t, err)
	done, err := f.engine.Complete(ctx, first.ID, dto.CompleteTicketDTO{
		ResolvedByID: 42,
		CallID:       null.StringFrom("call-2"),
	})
	require.NoError(t, err)
	assert.Equal(t, constants.StatusClosed, done.Status)
	assert.False(t, done.Escalated)
	assert.True(t, done.ResolvedAt.Valid)

	// Порядок событий строго соответствует порядку коммитов.
	f.dispatcher.Flush()
	var firstActions []string
	for _, m := range f.events.all() {
		if m.TicketID == first.ID {
			firstActions = append(firstActions, m.Action)
		}
	}
	assert.Equal(t,
		[]string{dto.ActionAdd, dto.ActionCall, dto.ActionUpdate, dto.ActionCall, dto.ActionComplete},
		firstActions)

	// Номера событий глобально монотонны.
	msgs := f.events.all()
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].Sequence, msgs[i-1].Sequence)
	}

	// Журнал получил финальный снимок.
	f.journal.Flush()
	saved, ok := f.recorder.get(first.ID)
	require.True(t, ok)
	assert.Equal(t, constants.StatusClosed, saved.Status)
	assert.Equal(t, 1, saved.RetryCount)
}

func TestEngine_MarkFailedEscalatesOnLimit(t *testing.T) {
	f := newEngineFixture(t, config.QueueConfig{MaxRetries: 2, RetryPrecedence: true})
	ctx := context.Background()

	created, err := f.engine.Intake(ctx, intakeDTO("Недозвон", "HIGH"))
	require.NoError(t, err)

	// Первый неудачный дозвон - ещё не лимит.
	_, err = f.engine.Assign(ctx, created.ID, 5)
	require.NoError(t, err)
	after, err := f.engine.MarkFailed(ctx, created.ID, dto.FailTicketDTO{})
	require.NoError(t, err)
	assert.Equal(t, constants.StatusOpen, after.Status)
	assert.Equal(t, 1, after.RetryCount)

	// Второй - ровно на лимите, тикет закрывается с эскалацией.
	_, err = f.engine.Assign(ctx, created.ID, 5)
	require.NoError(t, err)
	escalated, err := f.engine.MarkFailed(ctx, created.ID, dto.FailTicketDTO{})
	require.NoError(t, err)
	assert.Equal(t, constants.StatusClosed, escalated.Status)
	assert.True(t, escalated.Escalated)
	assert.Equal(t, 2, escalated.RetryCount)
	assert.True(t, escalated.ResolvedAt.Valid)

	// Эскалированный тикет не появляется ни в одной очереди.
	assert.Empty(t, f.engine.QueueSnapshot(LanePrimary))
	assert.Empty(t, f.engine.QueueSnapshot(LaneRetry))
	_, ok := f.engine.NextTicket()
	assert.False(t, ok)

	// Последнее событие - COMPLETE с пометкой эскалации.
	f.dispatcher.Flush()
	msgs := f.events.all()
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Equal(t, dto.ActionComplete, last.Action)
	assert.Equal(t, dto.QueueTypeRetry, last.QueueType)
	assert.Contains(t, last.Message, "эскалаци")
}

func TestEngine_TerminalReplayIsConflict(t *testing.T) {
	f := newEngineFixture(t, defaultQueueConfig())
	ctx := context.Background()

	created, err := f.engine.Intake(ctx, intakeDTO("Повтор", "MEDIUM"))
	require.NoError(t, err)
	_, err = f.engine.Assign(ctx, created.ID, 5)
	require.NoError(t, err)
	_, err = f.engine.Complete(ctx, created.ID, dto.CompleteTicketDTO{ResolvedByID: 5})
	require.NoError(t, err)

	// Повтор любого терминального перехода по закрытому тикету - конфликт,
	// а не тихий успех и не "не найдено".
	_, err = f.engine.Complete(ctx, created.ID, dto.CompleteTicketDTO{ResolvedByID: 5})
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "повторный Complete: %v", err)

	_, err = f.engine.Cancel(ctx, created.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "Cancel закрытого: %v", err)

	_, err = f.engine.MarkFailed(ctx, created.ID, dto.FailTicketDTO{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict), "MarkFailed закрытого: %v", err)

	// Конфликт не порождает ни событий, ни записей в журнал.
	f.dispatcher.Flush()
	f.journal.Flush()
	saved, _ := f.recorder.get(created.ID)
	assert.Equal(t, constants.StatusClosed, saved.Status)
	assert.Nil(t, saved.CallID)
}

func TestEngine_InvalidTransitions(t *testing.T) {
	f := newEngineFixture(t, defaultQueueConfig())
	ctx := context.Background()

	created, err := f.engine.Intake(ctx, intakeDTO("Переходы", "LOW"))
	require.NoError(t, err)

	// Завершить или провалить можно только тикет в работе.
	_, err = f.engine.Complete(ctx, created.ID, dto.CompleteTicketDTO{ResolvedByID: 1})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))

	_, err = f.engine.MarkFailed(ctx, created.ID, dto.FailTicketDTO{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))

	// Повторное назначение уже взятого тикета.
	_, err = f.engine.Assign(ctx, created.ID, 1)
	require.NoError(t, err)
	_, err = f.engine.Assign(ctx, created.ID, 2)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))

	// Неизвестный тикет.
	_, err = f.engine.Assign(ctx, 9999, 1)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	_, err = f.engine.FindTicket(9999)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestEngine_CancelOpenTicketPromotesPeers(t *testing.T) {
	f := newEngineFixture(t, defaultQueueConfig())
	ctx := context.Background()

	first, err := f.engine.Intake(ctx, intakeDTO("Первый", "MEDIUM"))
	require.NoError(t, err)
	second, err := f.engine.Intake(ctx, intakeDTO("Второй", "MEDIUM"))
	require.NoError(t, err)

	cancelled, err := f.engine.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusClosed, cancelled.Status)
	assert.False(t, cancelled.Escalated)

	snapshot := f.engine.QueueSnapshot(LanePrimary)
	require.Len(t, snapshot, 1)
	assert.Equal(t, second.ID, snapshot[0].ID)
	assert.Equal(t, 1, snapshot[0].QueuePosition.Int)

	f.dispatcher.Flush()
	msgs := f.events.all()
	last := msgs[len(msgs)-1]
	assert.Equal(t, dto.ActionUpdate, last.Action, "сосед получил UPDATE с поднятой позицией")
	assert.Equal(t, second.ID, last.TicketID)
	assert.Equal(t, 1, last.QueuePosition)
}

func TestEngine_RequeueMovesTicketBackToMainQueue(t *testing.T) {
	f := newEngineFixture(t, defaultQueueConfig())
	ctx := context.Background()

	created, err := f.engine.Intake(ctx, intakeDTO("Возврат", "MEDIUM"))
	require.NoError(t, err)
	_, err = f.engine.Assign(ctx, created.ID, 3)
	require.NoError(t, err)
	_, err = f.engine.MarkFailed(ctx, created.ID, dto.FailTicketDTO{})
	require.NoError(t, err)

	moved, err := f.engine.Requeue(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, string(LanePrimary), moved.Lane.String)
	assert.Equal(t, 1, f.engine.Stats().Queue)
	assert.Equal(t, 0, f.engine.Stats().Retry)

	// Из основной очереди возвращать нечего.
	_, err = f.engine.Requeue(ctx, created.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))

	f.dispatcher.Flush()
	var actions []string
	for _, m := range f.events.all() {
		if m.TicketID == created.ID {
			actions = append(actions, m.Action+":"+m.QueueType)
		}
	}
	assert.Contains(t, actions, dto.ActionRemove+":"+dto.QueueTypeRetry)
	assert.Contains(t, actions, dto.ActionAdd+":"+dto.QueueTypeMain)
}

func TestEngine_Stats(t *testing.T) {
	f := newEngineFixture(t, defaultQueueConfig())
	ctx := context.Background()

	high, err := f.engine.Intake(ctx, intakeDTO("Срочный", "HIGH"))
	require.NoError(t, err)
	_, err = f.engine.Intake(ctx, intakeDTO("Обычный", "LOW"))
	require.NoError(t, err)
	_, err = f.engine.Assign(ctx, high.ID, 1)
	require.NoError(t, err)

	stats := f.engine.Stats()
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 1, stats.InProgress)
	assert.Equal(t, 1, stats.HighPriority)
	assert.Equal(t, 1, stats.Queue)
	assert.Equal(t, 0, stats.Retry)
}

func TestEngine_RebuildRestoresOrderAndIDs(t *testing.T) {
	f := newEngineFixture(t, defaultQueueConfig())
	ctx := context.Background()

	// Снимок, каким его отдаёт хранилище: сортировка по приоритету и
	// времени создания, закрытые отфильтрованы ещё на чтении.
	tickets := []entities.Ticket{
		{ID: 3, Title: "Срочный", PatientID: 1, Priority: "HIGH", Status: constants.StatusOpen, Lane: "QUEUE", CreatedByID: 1},
		{ID: 1, Title: "Старый", PatientID: 2, Priority: "MEDIUM", Status: constants.StatusOpen, Lane: "RETRY", RetryCount: 1, CreatedByID: 1},
		{ID: 5, Title: "В работе", PatientID: 3, Priority: "MEDIUM", Status: constants.StatusInProgress, CreatedByID: 1},
	}

	require.NoError(t, f.engine.Rebuild(ctx, tickets, 5))

	assert.Equal(t, 1, f.engine.Stats().Queue)
	assert.Equal(t, 1, f.engine.Stats().Retry)

	// Тикет в работе адресуем, но вне очередей.
	inWork, err := f.engine.FindTicket(5)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusInProgress, inWork.Status)
	assert.False(t, inWork.QueuePosition.Valid)

	// Новые тикеты получают ID после наибольшего из истории.
	created, err := f.engine.Intake(ctx, intakeDTO("Новый", "LOW"))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), created.ID)
}
