package memstore

import (
	"context"
	"sync"
	"testing"
	appointmentserrors "vaxslot/internal/appointments/errors"
	slotserrors "vaxslot/internal/slots/errors"
	vaccineserrors "vaxslot/internal/vaccines/errors"
	"vaxslot/pkg/model"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Store, capacity int) (*model.Vaccine, *model.Slot) {
	t.Helper()
	ctx := context.Background()
	v := &model.Vaccine{Name: "Hep B", Manufacturer: "Acme", DosesAvailable: 10}
	require.NoError(t, s.Vaccines().Create(ctx, v))
	sl := &model.Slot{VaccineID: v.ID, Date: "2026-11-01", StartTime: "10:00", EndTime: "11:00", MaxAppointments: capacity}
	require.NoError(t, s.Slots().Create(ctx, sl))
	return v, sl
}

func TestExecuteTransaction_RollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	v, sl := seed(t, s, 2)

	err := s.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, s.Vaccines().AdjustDoses(txCtx, v.ID, -3))
		require.NoError(t, s.Slots().Update(txCtx, sl.ID, &model.Slot{Date: "2026-11-02", StartTime: "12:00", EndTime: "13:00", MaxAppointments: 5}))
		return errors.New("abort")
	})
	require.Error(t, err)

	gotV, err := s.Vaccines().FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, gotV.DosesAvailable)

	gotS, err := s.Slots().FindByID(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, gotS.MaxAppointments)
	assert.Equal(t, "2026-11-01", gotS.Date)
}

func TestExecuteTransaction_RollbackKeepsSeatWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, sl := seed(t, s, 3)

	err := s.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, s.Slots().Update(txCtx, sl.ID, &model.Slot{Date: sl.Date, StartTime: sl.StartTime, EndTime: sl.EndTime, MaxAppointments: 4}))
		_, err := s.Slots().ReserveSeat(ctx, sl.ID)
		require.NoError(t, err)
		return errors.New("abort")
	})
	require.Error(t, err)

	got, err := s.Slots().FindByID(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MaxAppointments)
	assert.Equal(t, 1, got.BookedCount)
}

func TestExecuteTransaction_RollbackKeepsCapacityAboveSeats(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, sl := seed(t, s, 1)

	err := s.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, s.Slots().Update(txCtx, sl.ID, &model.Slot{Date: sl.Date, StartTime: sl.StartTime, EndTime: sl.EndTime, MaxAppointments: 3}))
		for range 3 {
			_, err := s.Slots().ReserveSeat(ctx, sl.ID)
			require.NoError(t, err)
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	got, err := s.Slots().FindByID(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.BookedCount)
	assert.Equal(t, 3, got.MaxAppointments)
	assert.LessOrEqual(t, got.BookedCount, got.MaxAppointments)
}

func TestSlots_SeatBounds(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, sl := seed(t, s, 1)
	slots := s.Slots()

	before, err := slots.ReserveSeat(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, before.BookedCount)
	assert.EqualValues(t, 0, before.Version)

	_, err = slots.ReserveSeat(ctx, sl.ID)
	assert.True(t, errors.Is(err, slotserrors.ErrSlotFull))

	err = slots.Update(ctx, sl.ID, &model.Slot{Date: sl.Date, StartTime: sl.StartTime, EndTime: sl.EndTime, MaxAppointments: 0})
	assert.True(t, errors.Is(err, slotserrors.ErrCapacityBelowBooked))

	assert.True(t, errors.Is(slots.Delete(ctx, sl.ID), slotserrors.ErrSlotInUse))

	require.NoError(t, slots.ReleaseSeat(ctx, sl.ID))
	require.NoError(t, slots.ReleaseSeat(ctx, sl.ID))
	got, err := slots.FindByID(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookedCount)

	require.NoError(t, slots.Delete(ctx, sl.ID))
	_, err = slots.ReserveSeat(ctx, sl.ID)
	assert.True(t, errors.Is(err, slotserrors.ErrNotFound))
	_, err = slots.ReserveSeat(ctx, "nope")
	assert.True(t, errors.Is(err, slotserrors.ErrInvalidID))
}

func TestSlots_ConcurrentReserve(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, sl := seed(t, s, 7)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Slots().ReserveSeat(ctx, sl.ID); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, ok)
	got, err := s.Slots().FindByID(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.BookedCount)
}

func TestSlots_FindAllFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	v, full := seed(t, s, 1)
	open := &model.Slot{VaccineID: v.ID, Date: "2026-11-01", StartTime: "08:00", EndTime: "09:00", MaxAppointments: 3}
	require.NoError(t, s.Slots().Create(ctx, open))
	_, err := s.Slots().ReserveSeat(ctx, full.ID)
	require.NoError(t, err)

	all, err := s.Slots().FindAll(ctx, model.SlotFilter{VaccineID: v.ID}, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, open.ID, all[0].ID)

	available, err := s.Slots().FindAll(ctx, model.SlotFilter{OnlyAvailable: true}, 10, 0)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, open.ID, available[0].ID)

	n, err := s.Slots().CountByVaccine(ctx, v.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	totals, err := s.Slots().SeatTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SeatTotals{Slots: 2, Booked: 1, Capacity: 4}, totals)
}

func TestVaccines_AdjustDoses(t *testing.T) {
	s := New()
	ctx := context.Background()
	v, _ := seed(t, s, 1)

	assert.True(t, errors.Is(s.Vaccines().AdjustDoses(ctx, v.ID, -11), vaccineserrors.ErrInsufficientDoses))
	require.NoError(t, s.Vaccines().AdjustDoses(ctx, v.ID, -10))
	assert.True(t, errors.Is(s.Vaccines().AdjustDoses(ctx, "65f000000000000000000000", 1), vaccineserrors.ErrNotFound))
}

func TestAppointments_UniquePerUserAndSlot(t *testing.T) {
	s := New()
	ctx := context.Background()
	v, sl := seed(t, s, 2)
	repo := s.Appointments()

	a := &model.Appointment{UserID: "u1", SlotID: sl.ID, VaccineID: v.ID, Status: model.StatusScheduled}
	require.NoError(t, repo.Create(ctx, a))
	assert.False(t, a.BookedAt.IsZero())
	assert.Equal(t, a.BookedAt, a.UpdatedAt)

	err := repo.Create(ctx, &model.Appointment{UserID: "u1", SlotID: sl.ID, Status: model.StatusScheduled})
	assert.True(t, errors.Is(err, appointmentserrors.ErrAlreadyBooked))

	found, err := repo.FindByUserAndSlot(ctx, "u1", sl.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)
}

func TestAppointments_DeleteScheduled(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, sl := seed(t, s, 2)
	repo := s.Appointments()

	a := &model.Appointment{UserID: "u1", SlotID: sl.ID, Status: model.StatusScheduled}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.UpdateStatus(ctx, a.ID, model.StatusMissed, "tok"))

	deleted, err := repo.DeleteScheduled(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, repo.UpdateStatus(ctx, a.ID, model.StatusScheduled, "tok"))
	deleted, err = repo.DeleteScheduled(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repo.FindByID(ctx, a.ID)
	assert.True(t, errors.Is(err, appointmentserrors.ErrNotFound))
	assert.True(t, errors.Is(repo.SetCredential(ctx, a.ID, "x"), appointmentserrors.ErrNotFound))
}
