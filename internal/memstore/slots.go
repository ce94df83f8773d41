package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	slotserrors "vaxslot/internal/slots/errors"
	"vaxslot/internal/slots/repository"
	mongotx "vaxslot/pkg/db/mongo"
	"vaxslot/pkg/model"
)

var _ repository.SlotRepository = (*SlotRepository)(nil)

type SlotRepository struct {
	store *Store
}

func (r *SlotRepository) Create(ctx context.Context, sl *model.Slot) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	sl.ID = newID()
	sl.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	sl.BookedCount = 0
	sl.Version = 0
	stored := *sl
	s.slots[sl.ID] = &stored
	record(ctx, func() { delete(s.slots, stored.ID) })
	return nil
}

func (r *SlotRepository) lookup(id string) (*model.Slot, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}
	sl, ok := r.store.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
	}
	return sl, nil
}

func (r *SlotRepository) FindByID(ctx context.Context, id string) (*model.Slot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	sl, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	out := *sl
	return &out, nil
}

func (r *SlotRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Slot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	out := []*model.Slot{}
	for _, id := range ids {
		if sl, ok := r.store.slots[id]; ok {
			c := *sl
			out = append(out, &c)
		}
	}
	return out, nil
}

func matches(sl *model.Slot, f model.SlotFilter) bool {
	if f.VaccineID != "" && sl.VaccineID != f.VaccineID {
		return false
	}
	if f.Date != "" && sl.Date != f.Date {
		return false
	}
	if f.OnlyAvailable && sl.BookedCount >= sl.MaxAppointments {
		return false
	}
	return true
}

func (r *SlotRepository) filtered(f model.SlotFilter) []*model.Slot {
	out := []*model.Slot{}
	for _, sl := range r.store.slots {
		if matches(sl, f) {
			c := *sl
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *model.Slot) int {
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		if c := strings.Compare(a.StartTime, b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (r *SlotRepository) FindAll(ctx context.Context, filter model.SlotFilter, limit int, offset int64) ([]*model.Slot, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return page(r.filtered(filter), limit, offset), nil
}

func (r *SlotRepository) Count(ctx context.Context, filter model.SlotFilter) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for _, sl := range r.store.slots {
		if matches(sl, filter) {
			n++
		}
	}
	return n, nil
}

func (r *SlotRepository) CountByVaccine(ctx context.Context, vaccineID string) (int64, error) {
	return r.Count(ctx, model.SlotFilter{VaccineID: vaccineID})
}

func (r *SlotRepository) Update(ctx context.Context, id string, in *model.Slot) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, err := r.lookup(id)
	if err != nil {
		return err
	}
	if sl.BookedCount > in.MaxAppointments {
		return fmt.Errorf("%w: %s", slotserrors.ErrCapacityBelowBooked, id)
	}

	prev := *sl
	sl.Date = in.Date
	sl.StartTime = in.StartTime
	sl.EndTime = in.EndTime
	sl.MaxAppointments = in.MaxAppointments
	sl.Version++
	// Seats claimed outside the transaction survive a rollback, so capacity
	// never drops below them.
	record(ctx, func() {
		if cur, ok := s.slots[id]; ok {
			cur.Date = prev.Date
			cur.StartTime = prev.StartTime
			cur.EndTime = prev.EndTime
			cur.MaxAppointments = max(prev.MaxAppointments, cur.BookedCount)
		}
	})
	return nil
}

func (r *SlotRepository) Delete(ctx context.Context, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, err := r.lookup(id)
	if err != nil {
		return err
	}
	if sl.BookedCount > 0 {
		return fmt.Errorf("%w: %s", slotserrors.ErrSlotInUse, id)
	}
	delete(s.slots, id)
	record(ctx, func() { s.slots[id] = sl })
	return nil
}

func (r *SlotRepository) ReserveSeat(ctx context.Context, id string) (*model.Slot, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if sl.BookedCount >= sl.MaxAppointments {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrSlotFull, id)
	}
	before := *sl
	sl.BookedCount++
	sl.Version++
	return &before, nil
}

func (r *SlotRepository) ReleaseSeat(ctx context.Context, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, err := r.lookup(id)
	if err != nil {
		return err
	}
	if sl.BookedCount > 0 {
		sl.BookedCount--
		sl.Version++
	}
	return nil
}

func (r *SlotRepository) SeatTotals(ctx context.Context) (model.SeatTotals, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var t model.SeatTotals
	for _, sl := range r.store.slots {
		t.Slots++
		t.Booked += int64(sl.BookedCount)
		t.Capacity += int64(sl.MaxAppointments)
	}
	return t, nil
}

func (r *SlotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.store.ExecuteTransaction(ctx, fn)
}
