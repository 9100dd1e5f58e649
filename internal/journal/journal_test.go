package journal

import (
	"errors"
	"testing"
	"time"

	"skoll/internal/events"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open("journal", zerolog.Nop(), WithFS(vfs.NewMem()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func event(seq uint64, kind events.Kind, order, counter uint64) events.Event {
	return events.Event{
		Seq:       seq,
		ID:        uuid.New(),
		Kind:      kind,
		Timestamp: time.Unix(1_700_000_000, int64(seq)).UTC(),
		OrderID:   order,
		CounterID: counter,
		Amount:    uint256.NewInt(seq * 10),
		Price:     uint256.NewInt(1),
		Value:     uint256.NewInt(0),
		Fee:       uint256.NewInt(0),
	}
}

func TestAppendScanOrdering(t *testing.T) {
	s := openMem(t)

	last, err := s.Last()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), last)

	// Sequence numbers past 255 check the keys sort numerically.
	var batch []events.Event
	for seq := uint64(250); seq < 260; seq++ {
		batch = append(batch, event(seq, events.OrderCreated, seq, 0))
	}
	require.NoError(t, s.Append(batch[:5]))
	s.Publish(batch[5:])

	var seen []uint64
	require.NoError(t, s.Scan(0, func(ev events.Event) error {
		seen = append(seen, ev.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{250, 251, 252, 253, 254, 255, 256, 257, 258, 259}, seen)

	seen = seen[:0]
	require.NoError(t, s.Scan(257, func(ev events.Event) error {
		seen = append(seen, ev.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{257, 258, 259}, seen)

	last, err = s.Last()
	require.NoError(t, err)
	assert.Equal(t, uint64(259), last)

	got, err := s.Get(253)
	require.NoError(t, err)
	assert.Equal(t, batch[3], got)
}

func TestOrderIndex(t *testing.T) {
	s := openMem(t)
	require.NoError(t, s.Append([]events.Event{
		event(1, events.OrderCreated, 7, 0),
		event(2, events.OrderCreated, 8, 0),
		event(3, events.TradeSettled, 8, 7),
		event(4, events.OrderFilled, 7, 0),
		event(5, events.OrderCreated, 70, 0),
	}))

	var kinds []events.Kind
	require.NoError(t, s.Order(7, func(ev events.Event) error {
		kinds = append(kinds, ev.Kind)
		return nil
	}))
	assert.Equal(t, []events.Kind{events.OrderCreated, events.TradeSettled, events.OrderFilled}, kinds)
}

func TestScanStopsOnError(t *testing.T) {
	s := openMem(t)
	require.NoError(t, s.Append([]events.Event{event(1, events.OrderCreated, 1, 0), event(2, events.OrderCreated, 2, 0)}))

	stop := errors.New("stop")
	calls := 0
	err := s.Scan(0, func(ev events.Event) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
