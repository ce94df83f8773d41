package ledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	slotserrors "vaxslot/internal/slots/errors"
	mongotx "vaxslot/pkg/db/mongo"
	"vaxslot/pkg/logger"
	"vaxslot/pkg/model"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	reserveFunc func(ctx context.Context, slotID string) (*model.Slot, error)
	releaseFunc func(ctx context.Context, slotID string) error
}

func (m *mockStore) ReserveSeat(ctx context.Context, slotID string) (*model.Slot, error) {
	return m.reserveFunc(ctx, slotID)
}

func (m *mockStore) ReleaseSeat(ctx context.Context, slotID string) error {
	return m.releaseFunc(ctx, slotID)
}

// seatStore is a single-slot store with the same conditional semantics as
// the real repositories.
type seatStore struct {
	mu     sync.Mutex
	slot   model.Slot
	exists bool
}

func (s *seatStore) ReserveSeat(ctx context.Context, slotID string) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists || slotID != s.slot.ID {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, slotID)
	}
	if s.slot.BookedCount >= s.slot.MaxAppointments {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrSlotFull, slotID)
	}
	before := s.slot
	s.slot.BookedCount++
	s.slot.Version++
	return &before, nil
}

func (s *seatStore) ReleaseSeat(ctx context.Context, slotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists || slotID != s.slot.ID {
		return fmt.Errorf("%w: %s", slotserrors.ErrNotFound, slotID)
	}
	if s.slot.BookedCount > 0 {
		s.slot.BookedCount--
		s.slot.Version++
	}
	return nil
}

func testConfig() Config {
	return Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: logger.JSON, AddSource: false, Service: "test"})
}

func conflict() error {
	return errors.Mark(errors.New("WriteConflict"), mongotx.ErrWriteConflict)
}

func TestReserve_ConcurrentCapacity(t *testing.T) {
	const seats, callers = 5, 40
	store := &seatStore{slot: model.Slot{ID: "s1", MaxAppointments: seats}, exists: true}
	l := New(store, testConfig(), testLogger())

	var ok, full atomic.Int32
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(context.Background(), "s1")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrSlotFull):
				full.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, seats, ok.Load())
	assert.EqualValues(t, callers-seats, full.Load())
	assert.Equal(t, seats, store.slot.BookedCount)
}

func TestReserve_ReturnsPreIncrementVersion(t *testing.T) {
	store := &seatStore{slot: model.Slot{ID: "s1", MaxAppointments: 2, Version: 7}, exists: true}
	l := New(store, testConfig(), testLogger())

	res, err := l.Reserve(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", res.SlotID)
	assert.EqualValues(t, 7, res.Version)
	assert.Equal(t, 0, res.Slot.BookedCount)
}

func TestReserve_NotFound(t *testing.T) {
	l := New(&seatStore{}, testConfig(), testLogger())

	_, err := l.Reserve(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrSlotNotFound), "got %v", err)
}

func TestReserve_RetriesConflicts(t *testing.T) {
	var calls atomic.Int32
	store := &mockStore{
		reserveFunc: func(ctx context.Context, slotID string) (*model.Slot, error) {
			if calls.Add(1) < 3 {
				return nil, conflict()
			}
			return &model.Slot{ID: slotID, MaxAppointments: 1}, nil
		},
	}
	l := New(store, testConfig(), testLogger())

	_, err := l.Reserve(context.Background(), "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestReserve_ContentionWhenExhausted(t *testing.T) {
	var calls atomic.Int32
	store := &mockStore{
		reserveFunc: func(ctx context.Context, slotID string) (*model.Slot, error) {
			calls.Add(1)
			return nil, conflict()
		},
	}
	l := New(store, testConfig(), testLogger())

	_, err := l.Reserve(context.Background(), "s1")
	assert.True(t, errors.Is(err, ErrContention), "got %v", err)
	assert.EqualValues(t, 3, calls.Load())
}

func TestReserve_UnavailableIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	store := &mockStore{
		reserveFunc: func(ctx context.Context, slotID string) (*model.Slot, error) {
			calls.Add(1)
			return nil, errors.Mark(errors.New("connection refused"), mongotx.ErrUnavailable)
		},
	}
	l := New(store, testConfig(), testLogger())

	_, err := l.Reserve(context.Background(), "s1")
	assert.True(t, errors.Is(err, ErrStoreUnavailable), "got %v", err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRelease_FloorAtZero(t *testing.T) {
	store := &seatStore{slot: model.Slot{ID: "s1", MaxAppointments: 1}, exists: true}
	l := New(store, testConfig(), testLogger())

	require.NoError(t, l.Release(context.Background(), "s1"))
	assert.Equal(t, 0, store.slot.BookedCount)

	_, err := l.Reserve(context.Background(), "s1")
	require.NoError(t, err)
	require.NoError(t, l.Release(context.Background(), "s1"))
	require.NoError(t, l.Release(context.Background(), "s1"))
	assert.Equal(t, 0, store.slot.BookedCount)
}

func TestRelease_NotFound(t *testing.T) {
	l := New(&seatStore{}, testConfig(), testLogger())

	err := l.Release(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrSlotNotFound), "got %v", err)
}
