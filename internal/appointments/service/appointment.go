package service

import (
	"context"
	"time"
	appointmentserrors "vaxslot/internal/appointments/errors"
	"vaxslot/internal/appointments/repository"
	"vaxslot/internal/appointments/validator"
	"vaxslot/internal/credential"
	"vaxslot/internal/ledger"
	slotserrors "vaxslot/internal/slots/errors"
	vaccineserrors "vaxslot/internal/vaccines/errors"
	"vaxslot/pkg/auth"
	"vaxslot/pkg/config"
	mongotx "vaxslot/pkg/db/mongo"
	apperrors "vaxslot/pkg/errors"
	"vaxslot/pkg/events"
	"vaxslot/pkg/model"
	"vaxslot/pkg/sanitizer"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

type AppointmentService interface {
	Book(ctx context.Context, p model.Principal, req *model.BookingRequest) (*model.Appointment, error)
	Cancel(ctx context.Context, p model.Principal, id string) error
	UpdateStatus(ctx context.Context, p model.Principal, id string, req *model.StatusUpdateRequest) (*model.Appointment, error)
	GetByID(ctx context.Context, p model.Principal, id string) (*model.AppointmentView, error)
	ListMine(ctx context.Context, p model.Principal) ([]*model.AppointmentView, error)
	GetAll(ctx context.Context, p model.Principal, status model.AppointmentStatus, limit int, offset int64) ([]*model.Appointment, int64, error)
	CredentialImage(ctx context.Context, p model.Principal, id string) ([]byte, error)
}

// Seats is the inventory ledger as seen by bookings.
type Seats interface {
	Reserve(ctx context.Context, slotID string) (*ledger.Reservation, error)
	Release(ctx context.Context, slotID string) error
}

type SlotReader interface {
	FindByID(ctx context.Context, id string) (*model.Slot, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.Slot, error)
}

type VaccineReader interface {
	FindByID(ctx context.Context, id string) (*model.Vaccine, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.Vaccine, error)
}

// CredentialIssuer builds the scannable token stored on an appointment.
type CredentialIssuer interface {
	Encode(a *model.Appointment, slot *model.Slot, vaccine *model.Vaccine) (string, *credential.Token, error)
	QRCode(raw string, size int) ([]byte, error)
}

type appointmentService struct {
	repo        repository.AppointmentRepository
	seats       Seats
	slots       SlotReader
	vaccines    VaccineReader
	credentials CredentialIssuer
	publisher   events.Publisher
	validator   *validator.AppointmentValidator
	cfg         *config.Config
}

func NewAppointmentService(
	repo repository.AppointmentRepository,
	seats Seats,
	slots SlotReader,
	vaccines VaccineReader,
	credentials CredentialIssuer,
	publisher events.Publisher,
	validator *validator.AppointmentValidator,
	cfg *config.Config,
) AppointmentService {
	if publisher == nil {
		publisher = events.Nop()
	}
	return &appointmentService{
		repo:        repo,
		seats:       seats,
		slots:       slots,
		vaccines:    vaccines,
		credentials: credentials,
		publisher:   publisher,
		validator:   validator,
		cfg:         cfg,
	}
}

// Book claims a seat first and then writes the appointment and its
// credential. Any failure after the seat is claimed removes the appointment
// and returns the seat.
func (s *appointmentService) Book(ctx context.Context, p model.Principal, req *model.BookingRequest) (*model.Appointment, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateBooking(req); err != nil {
		s.cfg.Log.Warn("Booking validation failed",
			"user_id", p.UserID,
			"error", err,
		)
		return nil, apperrors.Validation("Booking validation failed", map[string]any{
			"error": err.Error(),
		})
	}
	slotID := req.SlotID

	existing, err := s.repo.FindByUserAndSlot(ctx, p.UserID, slotID)
	switch {
	case err == nil:
		s.cfg.Log.Warn("Duplicate booking rejected",
			"user_id", p.UserID,
			"slot_id", slotID,
			"appointment_id", existing.ID,
		)
		return nil, apperrors.AlreadyBooked(slotID)
	case !errors.Is(err, appointmentserrors.ErrNotFound):
		s.logFailure("Failed to check existing booking", slotID, err, "user_id", p.UserID)
		return nil, s.mapError(err, slotID, "Failed to book appointment")
	}

	res, err := s.seats.Reserve(ctx, slotID)
	if err != nil {
		s.logFailure("Failed to reserve seat", slotID, err, "user_id", p.UserID)
		return nil, s.mapError(err, slotID, "Failed to book appointment")
	}

	// The id is fixed before the insert so an insert that commits but reports
	// an error can still be undone.
	a := &model.Appointment{
		ID:        primitive.NewObjectID().Hex(),
		UserID:    p.UserID,
		UserEmail: p.Email,
		SlotID:    slotID,
		VaccineID: res.Slot.VaccineID,
		Status:    model.StatusScheduled,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		s.compensate(ctx, a.ID, slotID)
		s.logFailure("Failed to create appointment", slotID, err, "user_id", p.UserID)
		return nil, s.mapError(err, slotID, "Failed to book appointment")
	}

	if err := s.issueCredential(ctx, a, res.Slot); err != nil {
		s.compensate(ctx, a.ID, slotID)
		s.logFailure("Failed to issue credential", a.ID, err, "slot_id", slotID)
		return nil, s.mapError(err, a.ID, "Failed to issue appointment credential")
	}

	s.publish(ctx, events.AppointmentEvent{
		Type:          events.AppointmentBooked,
		AppointmentID: a.ID,
		UserID:        a.UserID,
		SlotID:        a.SlotID,
		VaccineID:     a.VaccineID,
		Status:        string(a.Status),
		ActorID:       p.UserID,
	})

	s.cfg.Log.Info("Appointment booked successfully",
		"id", a.ID,
		"user_id", a.UserID,
		"slot_id", slotID,
		"slot_version", res.Version,
	)
	return a, nil
}

func (s *appointmentService) issueCredential(ctx context.Context, a *model.Appointment, slot *model.Slot) error {
	vaccine, err := s.vaccines.FindByID(ctx, a.VaccineID)
	if err != nil && !isMissing(err) {
		return err
	}

	raw, _, err := s.credentials.Encode(a, slot, vaccine)
	if err != nil {
		return err
	}
	if err := s.repo.SetCredential(ctx, a.ID, raw); err != nil {
		return err
	}
	a.CredentialToken = raw
	return nil
}

// compensate undoes a partially applied booking. It runs detached from the
// request so a cancelled client cannot strand a claimed seat. The seat is only
// returned once the appointment is known to be gone; otherwise it stays
// charged, which under-books rather than over-books.
func (s *appointmentService) compensate(ctx context.Context, appointmentID string, slotID string) {
	ctx = context.WithoutCancel(ctx)

	if err := s.repo.Delete(ctx, appointmentID); err != nil && !errors.Is(err, appointmentserrors.ErrNotFound) {
		s.cfg.Log.Error("Compensation failed to remove appointment, seat left charged",
			"id", appointmentID,
			"slot_id", slotID,
			"error", err,
		)
		return
	}
	if err := s.seats.Release(ctx, slotID); err != nil {
		s.cfg.Log.Error("Compensation failed to release seat",
			"slot_id", slotID,
			"error", err,
		)
		return
	}
	s.cfg.Log.Warn("Booking compensated", "id", appointmentID, "slot_id", slotID)
}

// Cancel deletes a Scheduled appointment and then returns its seat.
func (s *appointmentService) Cancel(ctx context.Context, p model.Principal, id string) error {
	a, err := s.load(ctx, p, id)
	if err != nil {
		return err
	}
	if a.Status != model.StatusScheduled {
		return apperrors.InvalidTransition(string(a.Status), "Cancelled")
	}

	deleted, err := s.repo.DeleteScheduled(ctx, id)
	if err != nil {
		s.logFailure("Failed to cancel appointment", id, err)
		return s.mapError(err, id, "Failed to cancel appointment")
	}
	if !deleted {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return s.mapError(err, id, "Failed to cancel appointment")
		}
		return apperrors.InvalidTransition(string(current.Status), "Cancelled")
	}

	// The appointment is gone; a failed release leaves the seat charged
	// rather than over-admitting, so the cancellation still succeeds.
	if err := s.seats.Release(context.WithoutCancel(ctx), a.SlotID); err != nil {
		s.cfg.Log.Error("Failed to release seat after cancellation",
			"id", id,
			"slot_id", a.SlotID,
			"error", err,
		)
	}

	s.publish(ctx, events.AppointmentEvent{
		Type:           events.AppointmentCancelled,
		AppointmentID:  a.ID,
		UserID:         a.UserID,
		SlotID:         a.SlotID,
		VaccineID:      a.VaccineID,
		PreviousStatus: string(a.Status),
		ActorID:        p.UserID,
	})

	s.cfg.Log.Info("Appointment cancelled successfully",
		"id", id,
		"slot_id", a.SlotID,
		"actor_id", p.UserID,
	)
	return nil
}

// UpdateStatus accepts any move between the five statuses and reissues the
// credential. Seats are only returned by Cancel.
func (s *appointmentService) UpdateStatus(ctx context.Context, p model.Principal, id string, req *model.StatusUpdateRequest) (*model.Appointment, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.InvalidInput("Appointment ID cannot be empty")
	}

	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logFailure("Failed to get appointment", id, err)
		return nil, s.mapError(err, id, "Failed to update appointment status")
	}
	previous := a.Status

	req.Status = model.AppointmentStatus(sanitizer.SanitizeStatus(string(req.Status)))
	if err := s.validator.ValidateStatus(req); err != nil {
		s.cfg.Log.Warn("Status update rejected",
			"id", id,
			"status", req.Status,
			"error", err,
		)
		return nil, apperrors.InvalidTransition(string(previous), string(req.Status))
	}

	slot, vaccine, err := s.related(ctx, a)
	if err != nil {
		s.logFailure("Failed to load appointment details", id, err)
		return nil, s.mapError(err, id, "Failed to update appointment status")
	}

	a.Status = req.Status
	raw, _, err := s.credentials.Encode(a, slot, vaccine)
	if err != nil {
		s.cfg.Log.Error("Failed to reissue credential", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to update appointment status", err)
	}
	if err := s.repo.UpdateStatus(ctx, id, a.Status, raw); err != nil {
		s.logFailure("Failed to update appointment status", id, err)
		return nil, s.mapError(err, id, "Failed to update appointment status")
	}
	a.CredentialToken = raw

	s.publish(ctx, events.AppointmentEvent{
		Type:           events.AppointmentStatusChanged,
		AppointmentID:  a.ID,
		UserID:         a.UserID,
		SlotID:         a.SlotID,
		VaccineID:      a.VaccineID,
		Status:         string(a.Status),
		PreviousStatus: string(previous),
		ActorID:        p.UserID,
	})

	s.cfg.Log.Info("Appointment status updated successfully",
		"id", id,
		"from", previous,
		"to", a.Status,
		"actor_id", p.UserID,
	)
	return a, nil
}

func (s *appointmentService) GetByID(ctx context.Context, p model.Principal, id string) (*model.AppointmentView, error) {
	a, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}

	slot, vaccine, err := s.related(ctx, a)
	if err != nil {
		s.logFailure("Failed to load appointment details", id, err)
		return nil, s.mapError(err, id, "Failed to retrieve appointment")
	}
	return &model.AppointmentView{Appointment: a, Slot: slot, Vaccine: vaccine}, nil
}

func (s *appointmentService) ListMine(ctx context.Context, p model.Principal) ([]*model.AppointmentView, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}

	appointments, err := s.repo.FindByUser(ctx, p.UserID)
	if err != nil {
		s.logFailure("Failed to list appointments", "", err, "user_id", p.UserID)
		return nil, s.mapError(err, "", "Failed to retrieve appointments")
	}

	views, err := s.hydrate(ctx, appointments)
	if err != nil {
		s.logFailure("Failed to load appointment details", "", err, "user_id", p.UserID)
		return nil, s.mapError(err, "", "Failed to retrieve appointments")
	}
	return views, nil
}

func (s *appointmentService) GetAll(ctx context.Context, p model.Principal, status model.AppointmentStatus, limit int, offset int64) ([]*model.Appointment, int64, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, 0, err
	}
	if status != "" && !status.Valid() {
		return nil, 0, apperrors.InvalidInput("invalid status filter: " + string(status))
	}
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var appointments []*model.Appointment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		count, err = s.repo.Count(gctx, status)
		if err != nil {
			s.cfg.Log.Error("Failed to count appointments", "error", err)
			return s.mapError(err, "", "Failed to count appointments")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		appointments, err = s.repo.FindAll(gctx, status, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to get appointments",
				"status", status,
				"limit", limit,
				"offset", offset,
				"error", err,
			)
			return s.mapError(err, "", "Failed to retrieve appointments")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return appointments, count, nil
}

func (s *appointmentService) CredentialImage(ctx context.Context, p model.Principal, id string) ([]byte, error) {
	a, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if a.CredentialToken == "" {
		return nil, apperrors.NotFoundWithID("Credential", id)
	}

	png, err := s.credentials.QRCode(a.CredentialToken, s.cfg.QRSize)
	if err != nil {
		s.cfg.Log.Error("Failed to render credential", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to render credential", err)
	}
	return png, nil
}

// load fetches an appointment visible to p. Other patients' appointments
// are reported as missing.
func (s *appointmentService) load(ctx context.Context, p model.Principal, id string) (*model.Appointment, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.InvalidInput("Appointment ID cannot be empty")
	}

	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logFailure("Failed to get appointment by ID", id, err)
		return nil, s.mapError(err, id, "Failed to retrieve appointment")
	}
	if !p.IsAdmin() && a.UserID != p.UserID {
		s.cfg.Log.Warn("Appointment access denied", "id", id, "user_id", p.UserID)
		return nil, apperrors.AppointmentNotFound(id)
	}
	return a, nil
}

func (s *appointmentService) related(ctx context.Context, a *model.Appointment) (*model.Slot, *model.Vaccine, error) {
	var slot *model.Slot
	var vaccine *model.Vaccine

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		slot, err = s.slots.FindByID(gctx, a.SlotID)
		if isMissing(err) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		vaccine, err = s.vaccines.FindByID(gctx, a.VaccineID)
		if isMissing(err) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return slot, vaccine, nil
}

func (s *appointmentService) hydrate(ctx context.Context, appointments []*model.Appointment) ([]*model.AppointmentView, error) {
	views := make([]*model.AppointmentView, 0, len(appointments))
	if len(appointments) == 0 {
		return views, nil
	}

	slotIDs := make([]string, 0, len(appointments))
	vaccineIDs := make([]string, 0, len(appointments))
	for _, a := range appointments {
		slotIDs = append(slotIDs, a.SlotID)
		vaccineIDs = append(vaccineIDs, a.VaccineID)
	}

	var slots []*model.Slot
	var vaccines []*model.Vaccine

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		slots, err = s.slots.FindByIDs(gctx, slotIDs)
		return err
	})
	g.Go(func() error {
		var err error
		vaccines, err = s.vaccines.FindByIDs(gctx, vaccineIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slotsByID := make(map[string]*model.Slot, len(slots))
	for _, sl := range slots {
		slotsByID[sl.ID] = sl
	}
	vaccinesByID := make(map[string]*model.Vaccine, len(vaccines))
	for _, v := range vaccines {
		vaccinesByID[v.ID] = v
	}

	for _, a := range appointments {
		views = append(views, &model.AppointmentView{
			Appointment: a,
			Slot:        slotsByID[a.SlotID],
			Vaccine:     vaccinesByID[a.VaccineID],
		})
	}
	return views, nil
}

func (s *appointmentService) publish(ctx context.Context, event events.AppointmentEvent) {
	event.OccurredAt = time.Now().UTC()
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.cfg.Log.Warn("Failed to publish appointment event",
			"type", event.Type,
			"id", event.AppointmentID,
			"error", err,
		)
	}
}

func isMissing(err error) bool {
	return errors.Is(err, slotserrors.ErrNotFound) ||
		errors.Is(err, slotserrors.ErrInvalidID) ||
		errors.Is(err, vaccineserrors.ErrNotFound) ||
		errors.Is(err, vaccineserrors.ErrInvalidID)
}

func (s *appointmentService) logFailure(msg string, id string, err error, args ...any) {
	if apperrors.IsAppError(err) ||
		errors.Is(err, appointmentserrors.ErrNotFound) ||
		errors.Is(err, appointmentserrors.ErrInvalidID) ||
		errors.Is(err, appointmentserrors.ErrAlreadyBooked) ||
		errors.Is(err, ledger.ErrSlotFull) ||
		errors.Is(err, ledger.ErrSlotNotFound) {
		s.cfg.Log.Warn(msg, append([]any{"id", id, "error", err}, args...)...)
		return
	}
	s.cfg.Log.Error(msg, append([]any{"id", id, "error", err}, args...)...)
}

// mapError translates store and ledger failures. ref is the slot id on
// booking paths and the appointment id everywhere else.
func (s *appointmentService) mapError(err error, ref string, message string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, appointmentserrors.ErrNotFound), errors.Is(err, appointmentserrors.ErrInvalidID):
		return apperrors.AppointmentNotFound(ref)
	case errors.Is(err, appointmentserrors.ErrAlreadyBooked):
		return apperrors.AlreadyBooked(ref)
	case errors.Is(err, ledger.ErrSlotFull):
		return apperrors.SlotFull(ref)
	case errors.Is(err, ledger.ErrSlotNotFound):
		return apperrors.SlotNotFound(ref)
	case errors.Is(err, ledger.ErrContention):
		return apperrors.Contention(err)
	case errors.Is(err, ledger.ErrStoreUnavailable), errors.Is(err, mongotx.ErrUnavailable):
		return apperrors.StoreUnavailable(err)
	default:
		return apperrors.Internal(message, err)
	}
}
