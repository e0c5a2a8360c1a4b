package queue

import (
	"errors"
	"sort"
	"sync"
)

// Lane - одна из двух очередей, в которых может находиться активный тикет.
type Lane string

const (
	LanePrimary Lane = "QUEUE"
	LaneRetry   Lane = "RETRY"
)

var (
	ErrAlreadyQueued = errors.New("тикет уже находится в очереди")
	ErrNotQueued     = errors.New("тикет не находится ни в одной очереди")
)

// entry - позиция тикета в очереди. Ключ сортировки: (rank, seq).
// seq выдается из глобального счётчика в момент входа в очередь;
// повторный вход в очередь всегда получает свежий номер.
type entry struct {
	ticketID uint64
	rank     int
	seq      uint64
	lane     Lane
}

// before - порядок внутри одной очереди: сначала приоритет, затем FIFO.
func (e entry) before(o entry) bool {
	if e.rank != o.rank {
		return e.rank < o.rank
	}
	return e.seq < o.seq
}

// MoveResult - итог атомарного перевода тикета между очередями.
type MoveResult struct {
	From          Lane
	Position      int
	DisplacedFrom []uint64 // поднялись в исходной очереди
	DisplacedTo   []uint64 // сдвинулись вниз в целевой
}

// Store - авторитетный порядок всех активных тикетов, обе очереди в одной
// структуре, чтобы инварианты (тикет максимум в одной очереди) жили в одном
// месте. Мутации сериализует движок; Store дополнительно защищён RWMutex,
// чтобы читатели не видели полуприменённого состояния.
type Store struct {
	mu    sync.RWMutex
	seq   uint64
	lanes map[Lane][]entry
	meta  map[uint64]entry

	// retryPrecedence - в сводном порядке тикеты повторной очереди идут
	// впереди основной при равном приоритете.
	retryPrecedence bool
}

func NewStore(retryPrecedence bool) *Store {
	return &Store{
		lanes: map[Lane][]entry{
			LanePrimary: {},
			LaneRetry:   {},
		},
		meta:            make(map[uint64]entry),
		retryPrecedence: retryPrecedence,
	}
}

// Insert добавляет тикет в очередь. Возвращает 1-based позицию и ID тикетов,
// которые из-за вставки сдвинулись вниз.
func (s *Store) Insert(ticketID uint64, priorityRank int, lane Lane) (int, []uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meta[ticketID]; ok {
		return 0, nil, ErrAlreadyQueued
	}

	s.seq++
	e := entry{ticketID: ticketID, rank: priorityRank, seq: s.seq, lane: lane}
	idx := s.insertLocked(e)

	displaced := idsAfter(s.lanes[lane], idx)
	return idx + 1, displaced, nil
}

// Remove убирает тикет из его очереди. Возвращает очередь и ID тикетов,
// которые поднялись на освободившееся место.
func (s *Store) Remove(ticketID uint64) (Lane, []uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.meta[ticketID]
	if !ok {
		return "", nil, ErrNotQueued
	}

	idx := s.removeLocked(e)
	displaced := idsAfter(s.lanes[e.lane], idx-1)
	return e.lane, displaced, nil
}

// MoveLane атомарно переводит тикет в другую очередь: убрать, затем вставить
// со свежим порядковым номером. Используется для переводов Primary→Retry и
// обратно.
func (s *Store) MoveLane(ticketID uint64, to Lane) (MoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.meta[ticketID]
	if !ok {
		return MoveResult{}, ErrNotQueued
	}
	from := e.lane

	removedIdx := s.removeLocked(e)
	displacedFrom := idsAfter(s.lanes[from], removedIdx-1)

	s.seq++
	moved := entry{ticketID: ticketID, rank: e.rank, seq: s.seq, lane: to}
	idx := s.insertLocked(moved)

	return MoveResult{
		From:          from,
		Position:      idx + 1,
		DisplacedFrom: displacedFrom,
		DisplacedTo:   idsAfter(s.lanes[to], idx),
	}, nil
}

// PositionOf - 1-based позиция тикета в его очереди.
func (s *Store) PositionOf(ticketID uint64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.meta[ticketID]
	if !ok {
		return 0, ErrNotQueued
	}
	return s.indexLocked(e) + 1, nil
}

// LaneOf сообщает, в какой очереди находится тикет.
func (s *Store) LaneOf(ticketID uint64) (Lane, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.meta[ticketID]
	return e.lane, ok
}

// Snapshot - упорядоченный срез ID тикетов очереди на этот момент.
// Только для чтения и восстановления, никогда не мутируется напрямую.
func (s *Store) Snapshot(lane Lane) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.lanes[lane]
	out := make([]uint64, len(items))
	for i, e := range items {
		out[i] = e.ticketID
	}
	return out
}

// Combined - сводный порядок обеих очередей для выбора следующего тикета.
// При retryPrecedence повторная очередь при равном приоритете идёт первой,
// иначе решает глобальный порядковый номер.
func (s *Store) Combined() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]entry, 0, len(s.meta))
	all = append(all, s.lanes[LanePrimary]...)
	all = append(all, s.lanes[LaneRetry]...)

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if s.retryPrecedence && a.lane != b.lane {
			return a.lane == LaneRetry
		}
		return a.seq < b.seq
	})

	out := make([]uint64, len(all))
	for i, e := range all {
		out[i] = e.ticketID
	}
	return out
}

func (s *Store) Len(lane Lane) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lanes[lane])
}

// --- внутренние помощники, вызываются только под s.mu ---

func (s *Store) insertLocked(e entry) int {
	items := s.lanes[e.lane]
	idx := sort.Search(len(items), func(i int) bool {
		return e.before(items[i])
	})
	items = append(items, entry{})
	copy(items[idx+1:], items[idx:])
	items[idx] = e
	s.lanes[e.lane] = items
	s.meta[e.ticketID] = e
	return idx
}

func (s *Store) removeLocked(e entry) int {
	idx := s.indexLocked(e)
	items := s.lanes[e.lane]
	s.lanes[e.lane] = append(items[:idx], items[idx+1:]...)
	delete(s.meta, e.ticketID)
	return idx
}

// indexLocked находит индекс записи двоичным поиском по ключу (rank, seq).
func (s *Store) indexLocked(e entry) int {
	items := s.lanes[e.lane]
	return sort.Search(len(items), func(i int) bool {
		return !items[i].before(e)
	})
}

func idsAfter(items []entry, idx int) []uint64 {
	if idx+1 >= len(items) {
		return nil
	}
	out := make([]uint64, 0, len(items)-idx-1)
	for _, e := range items[idx+1:] {
		out = append(out, e.ticketID)
	}
	return out
}
