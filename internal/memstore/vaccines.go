package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	vaccineserrors "vaxslot/internal/vaccines/errors"
	"vaxslot/internal/vaccines/repository"
	mongotx "vaxslot/pkg/db/mongo"
	"vaxslot/pkg/model"
)

var _ repository.VaccineRepository = (*VaccineRepository)(nil)

type VaccineRepository struct {
	store *Store
}

func (r *VaccineRepository) Create(ctx context.Context, v *model.Vaccine) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	v.ID = newID()
	v.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	stored := *v
	s.vaccines[v.ID] = &stored
	record(ctx, func() { delete(s.vaccines, stored.ID) })
	return nil
}

func (r *VaccineRepository) FindByID(ctx context.Context, id string) (*model.Vaccine, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validID(id) {
		return nil, fmt.Errorf("%w: %s", vaccineserrors.ErrInvalidID, id)
	}
	v, ok := s.vaccines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vaccineserrors.ErrNotFound, id)
	}
	out := *v
	return &out, nil
}

func (r *VaccineRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Vaccine, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*model.Vaccine{}
	for _, id := range ids {
		if v, ok := s.vaccines[id]; ok {
			c := *v
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *VaccineRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Vaccine, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*model.Vaccine, 0, len(s.vaccines))
	for _, v := range s.vaccines {
		c := *v
		all = append(all, &c)
	}
	slices.SortFunc(all, func(a, b *model.Vaccine) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return page(all, limit, offset), nil
}

func (r *VaccineRepository) Count(ctx context.Context) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.vaccines)), nil
}

func (r *VaccineRepository) Update(ctx context.Context, id string, v *model.Vaccine) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validID(id) {
		return fmt.Errorf("%w: %s", vaccineserrors.ErrInvalidID, id)
	}
	existing, ok := s.vaccines[id]
	if !ok {
		return fmt.Errorf("%w: %s", vaccineserrors.ErrNotFound, id)
	}

	prev := *existing
	existing.Name = v.Name
	existing.Manufacturer = v.Manufacturer
	existing.Description = v.Description
	existing.DosesAvailable = v.DosesAvailable
	record(ctx, func() {
		if cur, ok := s.vaccines[id]; ok {
			*cur = prev
		}
	})
	return nil
}

func (r *VaccineRepository) Delete(ctx context.Context, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validID(id) {
		return fmt.Errorf("%w: %s", vaccineserrors.ErrInvalidID, id)
	}
	existing, ok := s.vaccines[id]
	if !ok {
		return fmt.Errorf("%w: %s", vaccineserrors.ErrNotFound, id)
	}
	delete(s.vaccines, id)
	record(ctx, func() { s.vaccines[id] = existing })
	return nil
}

func (r *VaccineRepository) AdjustDoses(ctx context.Context, id string, delta int) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validID(id) {
		return fmt.Errorf("%w: %s", vaccineserrors.ErrInvalidID, id)
	}
	v, ok := s.vaccines[id]
	if !ok {
		return fmt.Errorf("%w: %s", vaccineserrors.ErrNotFound, id)
	}
	if v.DosesAvailable+delta < 0 {
		return fmt.Errorf("%w: vaccine %s needs %d", vaccineserrors.ErrInsufficientDoses, id, -delta)
	}
	v.DosesAvailable += delta
	record(ctx, func() {
		if cur, ok := s.vaccines[id]; ok {
			cur.DosesAvailable -= delta
		}
	})
	return nil
}

func (r *VaccineRepository) SumDoses(ctx context.Context) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, v := range s.vaccines {
		total += int64(v.DosesAvailable)
	}
	return total, nil
}

func (r *VaccineRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.store.ExecuteTransaction(ctx, fn)
}
