package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"triage-system/internal/entities"
)

// TicketRecorder - долговременное хранилище, куда пересылается каждый
// зафиксированный переход. По нему же восстанавливается Store при рестарте.
type TicketRecorder interface {
	SaveTicket(ctx context.Context, t entities.Ticket) error
}

const recordTimeout = 10 * time.Second

// Journal пересылает снимки тикетов в долговременное хранилище вне
// критической секции движка: Record только ставит снимок в буфер, запись
// ведёт отдельная горутина. Ошибка записи логируется - зафиксированный
// переход никогда не откатывается из-за проблем ниже по течению.
type Journal struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []entities.Ticket
	writing bool
	closed  bool

	repo   TicketRecorder
	logger *zap.Logger
	done   chan struct{}
}

func NewJournal(repo TicketRecorder, logger *zap.Logger) *Journal {
	j := &Journal{
		repo:   repo,
		logger: logger,
		done:   make(chan struct{}),
	}
	j.cond = sync.NewCond(&j.mu)
	go j.run()
	return j
}

// Record ставит снимок тикета в очередь на запись. Не блокируется.
func (j *Journal) Record(t entities.Ticket) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		j.logger.Warn("Журнал остановлен, снимок тикета отброшен", zap.Uint64("ticketId", t.ID))
		return
	}
	j.pending = append(j.pending, t)
	j.cond.Broadcast()
}

// Flush дожидается записи всего накопленного.
func (j *Journal) Flush() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for len(j.pending) > 0 || j.writing {
		j.cond.Wait()
	}
}

// Close дописывает остаток и останавливает горутину записи.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		<-j.done
		return
	}
	j.closed = true
	j.cond.Broadcast()
	j.mu.Unlock()
	<-j.done
}

func (j *Journal) run() {
	for {
		j.mu.Lock()
		for len(j.pending) == 0 && !j.closed {
			j.cond.Wait()
		}
		if len(j.pending) == 0 && j.closed {
			j.mu.Unlock()
			close(j.done)
			return
		}
		batch := j.pending
		j.pending = nil
		j.writing = true
		j.mu.Unlock()

		for _, t := range batch {
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			if err := j.repo.SaveTicket(ctx, t); err != nil {
				j.logger.Error("Не удалось записать переход тикета в хранилище",
					zap.Uint64("ticketId", t.ID),
					zap.String("status", t.Status),
					zap.Error(err),
				)
			}
			cancel()
		}

		j.mu.Lock()
		j.writing = false
		j.cond.Broadcast()
		j.mu.Unlock()
	}
}
