package queue

import (
	"sync"

	"go.uber.org/zap"

	"triage-system/internal/dto"
)

// Subscriber - получатель событий очереди (транспорт до клиентов).
// Ошибка подписчика логируется и не влияет ни на остальных подписчиков,
// ни на уже зафиксированную мутацию.
type Subscriber func(msg dto.QueueUpdateMessage) error

type subscription struct {
	name string
	fn   Subscriber
}

// Dispatcher превращает зафиксированные мутации в поток QueueUpdateMessage.
// Publish только ставит сообщения во внутренний буфер (дёшево, можно звать из
// критической секции движка - порядок фиксации сохраняется); доставку ведёт
// единственная горутина, поэтому подписчики видят события строго в порядке
// коммитов, а медленный транспорт не тормозит обработку тикетов.
type Dispatcher struct {
	mu         sync.Mutex
	cond       *sync.Cond
	pending    []dto.QueueUpdateMessage
	delivering bool
	closed     bool
	seq        uint64

	subsMu sync.RWMutex
	subs   []subscription

	logger *zap.Logger
	done   chan struct{}
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		logger: logger,
		done:   make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Subscribe добавляет подписчика. Имя нужно только для логов.
func (d *Dispatcher) Subscribe(name string, fn Subscriber) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	d.subs = append(d.subs, subscription{name: name, fn: fn})
}

// Publish ставит сообщения в очередь доставки и проставляет им глобальные
// монотонные номера. Никогда не блокируется на транспорте.
func (d *Dispatcher) Publish(msgs ...dto.QueueUpdateMessage) {
	if len(msgs) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("Диспетчер остановлен, сообщения отброшены", zap.Int("count", len(msgs)))
		return
	}
	for i := range msgs {
		d.seq++
		msgs[i].Sequence = d.seq
	}
	d.pending = append(d.pending, msgs...)
	d.cond.Broadcast()
}

// Flush дожидается, пока всё опубликованное будет доставлено подписчикам.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.pending) > 0 || d.delivering {
		d.cond.Wait()
	}
}

// Close доставляет остаток и останавливает горутину доставки.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	for {
		d.mu.Lock()
		for len(d.pending) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.pending) == 0 && d.closed {
			d.mu.Unlock()
			close(d.done)
			return
		}
		batch := d.pending
		d.pending = nil
		d.delivering = true
		d.mu.Unlock()

		d.deliver(batch)

		d.mu.Lock()
		d.delivering = false
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}

func (d *Dispatcher) deliver(batch []dto.QueueUpdateMessage) {
	d.subsMu.RLock()
	subs := d.subs
	d.subsMu.RUnlock()

	for _, msg := range batch {
		for _, sub := range subs {
			if err := sub.fn(msg); err != nil {
				d.logger.Error("Подписчик не принял событие очереди",
					zap.String("subscriber", sub.name),
					zap.Uint64("sequence", msg.Sequence),
					zap.Uint64("ticketId", msg.TicketID),
					zap.String("action", msg.Action),
					zap.Error(err),
				)
			}
		}
	}
}
