package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InsertOrderedByPriorityThenFIFO(t *testing.T) {
	s := NewStore(true)

	// rank: 0=HIGH, 1=MEDIUM, 2=LOW
	pos, displaced, err := s.Insert(1, 1, LanePrimary)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Empty(t, displaced)

	pos, displaced, err = s.Insert(2, 1, LanePrimary)
	require.NoError(t, err)
	assert.Equal(t, 2, pos, "равный приоритет - строго FIFO")
	assert.Empty(t, displaced)

	pos, displaced, err = s.Insert(3, 0, LanePrimary)
	require.NoError(t, err)
	assert.Equal(t, 1, pos, "высокий приоритет встаёт в голову очереди")
	assert.Equal(t, []uint64{1, 2}, displaced, "оба тикета среднего приоритета сдвинулись вниз")

	pos, _, err = s.Insert(4, 2, LanePrimary)
	require.NoError(t, err)
	assert.Equal(t, 4, pos, "низкий приоритет встаёт в хвост")

	assert.Equal(t, []uint64{3, 1, 2, 4}, s.Snapshot(LanePrimary))
}

func TestStore_InsertDuplicateRejected(t *testing.T) {
	s := NewStore(true)

	_, _, err := s.Insert(1, 0, LanePrimary)
	require.NoError(t, err)

	_, _, err = s.Insert(1, 0, LaneRetry)
	assert.ErrorIs(t, err, ErrAlreadyQueued, "тикет может находиться максимум в одной очереди")
}

func TestStore_RemoveReportsPromotedPeers(t *testing.T) {
	s := NewStore(true)
	for id := uint64(1); id <= 4; id++ {
		_, _, err := s.Insert(id, 1, LanePrimary)
		require.NoError(t, err)
	}

	lane, displaced, err := s.Remove(2)
	require.NoError(t, err)
	assert.Equal(t, LanePrimary, lane)
	assert.Equal(t, []uint64{3, 4}, displaced, "поднялись все, кто стоял позади")
	assert.Equal(t, []uint64{1, 3, 4}, s.Snapshot(LanePrimary))

	_, _, err = s.Remove(2)
	assert.ErrorIs(t, err, ErrNotQueued)
}

func TestStore_PositionOf(t *testing.T) {
	s := NewStore(true)
	_, _, err := s.Insert(10, 1, LanePrimary)
	require.NoError(t, err)
	_, _, err = s.Insert(11, 0, LanePrimary)
	require.NoError(t, err)
	_, _, err = s.Insert(12, 1, LaneRetry)
	require.NoError(t, err)

	pos, err := s.PositionOf(10)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	pos, err = s.PositionOf(11)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	// Позиции считаются внутри своей очереди.
	pos, err = s.PositionOf(12)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	_, err = s.PositionOf(99)
	assert.ErrorIs(t, err, ErrNotQueued)
}

func TestStore_MoveLaneGetsFreshSequence(t *testing.T) {
	s := NewStore(true)
	_, _, err := s.Insert(1, 1, LanePrimary)
	require.NoError(t, err)
	_, _, err = s.Insert(2, 1, LaneRetry)
	require.NoError(t, err)
	_, _, err = s.Insert(3, 1, LaneRetry)
	require.NoError(t, err)

	res, err := s.MoveLane(2, LanePrimary)
	require.NoError(t, err)
	assert.Equal(t, LaneRetry, res.From)
	assert.Equal(t, 2, res.Position, "свежий порядковый номер ставит тикет после уже ждущих")
	assert.Equal(t, []uint64{3}, res.DisplacedFrom)
	assert.Empty(t, res.DisplacedTo)

	assert.Equal(t, []uint64{1, 2}, s.Snapshot(LanePrimary))
	assert.Equal(t, []uint64{3}, s.Snapshot(LaneRetry))
}

func TestStore_CombinedRetryPrecedence(t *testing.T) {
	s := NewStore(true)
	_, _, err := s.Insert(1, 1, LanePrimary)
	require.NoError(t, err)
	_, _, err = s.Insert(2, 1, LaneRetry)
	require.NoError(t, err)
	_, _, err = s.Insert(3, 0, LanePrimary)
	require.NoError(t, err)

	// Высокий приоритет всегда впереди; при равном приоритете повторная
	// очередь обгоняет основную.
	assert.Equal(t, []uint64{3, 2, 1}, s.Combined())
}

func TestStore_CombinedWithoutRetryPrecedence(t *testing.T) {
	s := NewStore(false)
	_, _, err := s.Insert(1, 1, LanePrimary)
	require.NoError(t, err)
	_, _, err = s.Insert(2, 1, LaneRetry)
	require.NoError(t, err)

	// Без приоритета повторной очереди решает глобальный порядок входа.
	assert.Equal(t, []uint64{1, 2}, s.Combined())
}

func TestStore_RetryReentryBeatsLaterIntakes(t *testing.T) {
	s := NewStore(false)

	_, _, err := s.Insert(1, 1, LanePrimary)
	require.NoError(t, err)

	// Тикет 1 ушёл на дозвон и вернулся в повторную очередь.
	_, _, err = s.Remove(1)
	require.NoError(t, err)
	_, _, err = s.Insert(1, 1, LaneRetry)
	require.NoError(t, err)

	// Новый тикет того же приоритета пришёл позже.
	_, _, err = s.Insert(2, 1, LanePrimary)
	require.NoError(t, err)

	combined := s.Combined()
	assert.Equal(t, []uint64{1, 2}, combined,
		"вернувшийся тикет обслуживается раньше более поздних обращений даже без retryPrecedence")
}
