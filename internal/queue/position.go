package queue

// PositionCalculator - чистая производная от живого порядка Store:
// позиция = 1 + количество тикетов строго впереди в своей очереди.
// Пересчитывается после каждой мутации для самого тикета и для всех
// соседей, чей ранг сдвинулся, чтобы дашборды не показывали устаревшие
// позиции.
type PositionCalculator struct {
	store *Store
}

func NewPositionCalculator(store *Store) *PositionCalculator {
	return &PositionCalculator{store: store}
}

// Position - 1-based позиция тикета в его очереди, 0 если тикет вне очередей
// (взят в работу или закрыт).
func (p *PositionCalculator) Position(ticketID uint64) int {
	pos, err := p.store.PositionOf(ticketID)
	if err != nil {
		return 0
	}
	return pos
}

// Positions - позиции всех тикетов очереди одним снимком.
func (p *PositionCalculator) Positions(lane Lane) map[uint64]int {
	ids := p.store.Snapshot(lane)
	out := make(map[uint64]int, len(ids))
	for i, id := range ids {
		out[id] = i + 1
	}
	return out
}

// PositionIn - позиция в уже снятом снимке; для путей чтения, которым нужна
// согласованность внутри одного снимка.
func PositionIn(snapshot []uint64, ticketID uint64) int {
	for i, id := range snapshot {
		if id == ticketID {
			return i + 1
		}
	}
	return 0
}
