// Package memstore is an in-process document store with the same
// conditional-write semantics as the Mongo repositories. It backs
// STORE_BACKEND=memory and the service tests.
package memstore

import (
	"context"
	"sync"
	mongotx "vaxslot/pkg/db/mongo"
	"vaxslot/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	vaccines     map[string]*model.Vaccine
	slots        map[string]*model.Slot
	appointments map[string]*model.Appointment
}

func New() *Store {
	return &Store{
		vaccines:     make(map[string]*model.Vaccine),
		slots:        make(map[string]*model.Slot),
		appointments: make(map[string]*model.Appointment),
	}
}

func (s *Store) Vaccines() *VaccineRepository {
	return &VaccineRepository{store: s}
}

func (s *Store) Slots() *SlotRepository {
	return &SlotRepository{store: s}
}

func (s *Store) Appointments() *AppointmentRepository {
	return &AppointmentRepository{store: s}
}

type txKey struct{}

type tx struct {
	undo []func()
}

// ExecuteTransaction serializes transactions against each other and rolls
// back their writes when fn fails. Writes outside a transaction are not
// blocked.
func (s *Store) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	if _, ok := ctx.Value(txKey{}).(*tx); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &tx{}
	err := fn(context.WithValue(ctx, txKey{}, t))
	if err != nil {
		s.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		s.mu.Unlock()
	}
	return err
}

// record registers an undo step; callers hold s.mu.
func record(ctx context.Context, undo func()) {
	if t, ok := ctx.Value(txKey{}).(*tx); ok {
		t.undo = append(t.undo, undo)
	}
}

func newID() string {
	return primitive.NewObjectID().Hex()
}

func validID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

func page[T any](items []T, limit int, offset int64) []T {
	if offset >= int64(len(items)) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
