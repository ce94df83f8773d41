package service

import (
	"context"
	"math"
	"time"
	"vaxslot/pkg/auth"
	"vaxslot/pkg/config"
	mongotx "vaxslot/pkg/db/mongo"
	apperrors "vaxslot/pkg/errors"
	"vaxslot/pkg/model"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

type DashboardService interface {
	Summary(ctx context.Context, p model.Principal) (*model.DashboardSummary, error)
}

type AppointmentCounter interface {
	Count(ctx context.Context, status model.AppointmentStatus) (int64, error)
	CountBookedSince(ctx context.Context, since time.Time) (int64, error)
}

type SeatCounter interface {
	SeatTotals(ctx context.Context) (model.SeatTotals, error)
}

type DoseCounter interface {
	SumDoses(ctx context.Context) (int64, error)
}

type dashboardService struct {
	appointments AppointmentCounter
	seats        SeatCounter
	doses        DoseCounter
	cfg          *config.Config
	now          func() time.Time
}

func NewDashboardService(appointments AppointmentCounter, seats SeatCounter, doses DoseCounter, cfg *config.Config) DashboardService {
	return &dashboardService{
		appointments: appointments,
		seats:        seats,
		doses:        doses,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Summary runs every aggregate concurrently. "Today" is the current UTC day.
func (s *dashboardService) Summary(ctx context.Context, p model.Principal) (*model.DashboardSummary, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var summary model.DashboardSummary
	var seats model.SeatTotals

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary.TotalAppointments, err = s.appointments.Count(gctx, "")
		return errors.Wrap(err, "count appointments")
	})
	g.Go(func() error {
		var err error
		summary.ScheduledAppointments, err = s.appointments.Count(gctx, model.StatusScheduled)
		return errors.Wrap(err, "count scheduled appointments")
	})
	g.Go(func() error {
		var err error
		summary.BookedToday, err = s.appointments.CountBookedSince(gctx, startOfDay)
		return errors.Wrap(err, "count todays bookings")
	})
	g.Go(func() error {
		var err error
		seats, err = s.seats.SeatTotals(gctx)
		return errors.Wrap(err, "aggregate seats")
	})
	g.Go(func() error {
		var err error
		summary.TotalDoses, err = s.doses.SumDoses(gctx)
		return errors.Wrap(err, "sum doses")
	})
	if err := g.Wait(); err != nil {
		s.cfg.Log.Error("Failed to build dashboard summary", "error", err)
		if errors.Is(err, mongotx.ErrUnavailable) {
			return nil, apperrors.StoreUnavailable(err)
		}
		return nil, apperrors.Internal("Failed to build dashboard summary", err)
	}

	summary.TotalSlots = seats.Slots
	summary.BookedSeats = seats.Booked
	summary.AvailableSeats = max(0, seats.Capacity-seats.Booked)
	if seats.Capacity > 0 {
		pct := float64(seats.Booked) / float64(seats.Capacity) * 100
		summary.UtilizationPercent = math.Round(pct*100) / 100
	}

	s.cfg.Log.Debug("Dashboard summary built",
		"total_appointments", summary.TotalAppointments,
		"booked_seats", summary.BookedSeats,
		"utilization_percent", summary.UtilizationPercent,
	)
	return &summary, nil
}
