package service

import (
	"context"
	"testing"
	"time"
	"vaxslot/internal/memstore"
	"vaxslot/pkg/config"
	apperrors "vaxslot/pkg/errors"
	"vaxslot/pkg/logger"
	"vaxslot/pkg/model"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = model.Principal{UserID: "admin-1", Role: model.RoleAdmin}

type brokenDoses struct{}

func (brokenDoses) SumDoses(context.Context) (int64, error) {
	return 0, errors.New("aggregate failed")
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)

	vaccine := &model.Vaccine{Name: "Polio", Manufacturer: "Acme", DosesAvailable: 40}
	require.NoError(t, store.Vaccines().Create(ctx, vaccine))
	slot := &model.Slot{VaccineID: vaccine.ID, Date: "2026-10-20", StartTime: "08:00", EndTime: "09:00", MaxAppointments: 4}
	require.NoError(t, store.Slots().Create(ctx, slot))

	bookings := []struct {
		user     string
		bookedAt time.Time
		status   model.AppointmentStatus
	}{
		{"u1", now.Add(-time.Hour), model.StatusScheduled},
		{"u2", now.Add(-48 * time.Hour), model.StatusCompleted},
		{"u3", now.Add(-10 * time.Minute), model.StatusScheduled},
	}
	for _, b := range bookings {
		_, err := store.Slots().ReserveSeat(ctx, slot.ID)
		require.NoError(t, err)
		require.NoError(t, store.Appointments().Create(ctx, &model.Appointment{
			UserID:    b.user,
			SlotID:    slot.ID,
			VaccineID: vaccine.ID,
			Status:    b.status,
			BookedAt:  b.bookedAt,
		}))
	}

	svc := NewDashboardService(store.Appointments(), store.Slots(), store.Vaccines(), &config.Config{Log: logger.Discard()}).(*dashboardService)
	svc.now = func() time.Time { return now }

	got, err := svc.Summary(ctx, admin)
	require.NoError(t, err)

	want := &model.DashboardSummary{
		TotalAppointments:     3,
		ScheduledAppointments: 2,
		BookedToday:           2,
		TotalSlots:            1,
		BookedSeats:           3,
		AvailableSeats:        1,
		UtilizationPercent:    75,
		TotalDoses:            40,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summary() mismatch (-want +got):\n%s", diff)
	}
}

func TestSummary_EmptyStore(t *testing.T) {
	store := memstore.New()
	svc := NewDashboardService(store.Appointments(), store.Slots(), store.Vaccines(), &config.Config{Log: logger.Discard()})

	got, err := svc.Summary(context.Background(), admin)
	require.NoError(t, err)
	assert.Zero(t, got.UtilizationPercent)
	assert.Zero(t, got.AvailableSeats)
}

func TestSummary_Errors(t *testing.T) {
	store := memstore.New()
	svc := NewDashboardService(store.Appointments(), store.Slots(), brokenDoses{}, &config.Config{Log: logger.Discard()})

	_, err := svc.Summary(context.Background(), model.Principal{UserID: "p", Role: model.RolePatient})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = svc.Summary(context.Background(), admin)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternal))
}
