package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"
	appointmentserrors "vaxslot/internal/appointments/errors"
	"vaxslot/internal/appointments/repository"
	"vaxslot/pkg/config"
	"vaxslot/pkg/model"
)

var _ repository.AppointmentRepository = (*AppointmentRepository)(nil)

type AppointmentRepository struct {
	store *Store
}

func (r *AppointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.appointments {
		if existing.UserID == a.UserID && existing.SlotID == a.SlotID {
			return fmt.Errorf("%w: user %s slot %s", appointmentserrors.ErrAlreadyBooked, a.UserID, a.SlotID)
		}
	}

	if a.BookedAt.IsZero() {
		a.BookedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	a.UpdatedAt = a.BookedAt
	if a.ID == "" {
		a.ID = newID()
	} else if !validID(a.ID) {
		return fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, a.ID)
	}
	stored := *a
	s.appointments[a.ID] = &stored
	record(ctx, func() { delete(s.appointments, stored.ID) })
	return nil
}

func (r *AppointmentRepository) lookup(id string) (*model.Appointment, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, id)
	}
	a, ok := r.store.appointments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", appointmentserrors.ErrNotFound, id)
	}
	return a, nil
}

func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	a, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	out := *a
	return &out, nil
}

func (r *AppointmentRepository) FindByUserAndSlot(ctx context.Context, userID string, slotID string) (*model.Appointment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, a := range r.store.appointments {
		if a.UserID == userID && a.SlotID == slotID {
			out := *a
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", appointmentserrors.ErrNotFound, userID, slotID)
}

func (r *AppointmentRepository) collect(keep func(a *model.Appointment) bool) []*model.Appointment {
	out := []*model.Appointment{}
	for _, a := range r.store.appointments {
		if keep(a) {
			c := *a
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *model.Appointment) int {
		if c := b.BookedAt.Compare(a.BookedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

func (r *AppointmentRepository) FindByUser(ctx context.Context, userID string) ([]*model.Appointment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	out := r.collect(func(a *model.Appointment) bool { return a.UserID == userID })
	return page(out, config.DefaultPaginationLimit, 0), nil
}

func (r *AppointmentRepository) FindAll(ctx context.Context, status model.AppointmentStatus, limit int, offset int64) ([]*model.Appointment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	out := r.collect(func(a *model.Appointment) bool { return status == "" || a.Status == status })
	return page(out, limit, offset), nil
}

func (r *AppointmentRepository) Count(ctx context.Context, status model.AppointmentStatus) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for _, a := range r.store.appointments {
		if status == "" || a.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *AppointmentRepository) CountBookedSince(ctx context.Context, since time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for _, a := range r.store.appointments {
		if !a.BookedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *AppointmentRepository) SetCredential(ctx context.Context, id string, token string) error {
	return r.update(ctx, id, func(a *model.Appointment) { a.CredentialToken = token })
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, status model.AppointmentStatus, token string) error {
	return r.update(ctx, id, func(a *model.Appointment) {
		a.Status = status
		a.CredentialToken = token
	})
}

func (r *AppointmentRepository) update(ctx context.Context, id string, apply func(a *model.Appointment)) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := r.lookup(id)
	if err != nil {
		return err
	}
	prev := *a
	apply(a)
	a.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	record(ctx, func() {
		if cur, ok := s.appointments[id]; ok {
			*cur = prev
		}
	})
	return nil
}

func (r *AppointmentRepository) DeleteScheduled(ctx context.Context, id string) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validID(id) {
		return false, fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, id)
	}
	a, ok := s.appointments[id]
	if !ok || a.Status != model.StatusScheduled {
		return false, nil
	}
	delete(s.appointments, id)
	record(ctx, func() { s.appointments[id] = a })
	return true, nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := r.lookup(id)
	if err != nil {
		return err
	}
	delete(s.appointments, id)
	record(ctx, func() { s.appointments[id] = a })
	return nil
}
