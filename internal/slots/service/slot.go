package service

import (
	"context"
	slotserrors "vaxslot/internal/slots/errors"
	"vaxslot/internal/slots/repository"
	"vaxslot/internal/slots/validator"
	vaccineserrors "vaxslot/internal/vaccines/errors"
	"vaxslot/pkg/auth"
	"vaxslot/pkg/config"
	mongotx "vaxslot/pkg/db/mongo"
	apperrors "vaxslot/pkg/errors"
	"vaxslot/pkg/model"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

type SlotService interface {
	Create(ctx context.Context, p model.Principal, s *model.Slot) error
	GetByID(ctx context.Context, id string) (*model.SlotListing, error)
	GetAll(ctx context.Context, filter model.SlotFilter, limit int, offset int64) ([]*model.SlotListing, int64, error)
	Available(ctx context.Context, vaccineID string, date string, limit int, offset int64) ([]*model.SlotListing, int64, error)
	Update(ctx context.Context, p model.Principal, id string, updates *model.SlotUpdate) (*model.Slot, error)
	Delete(ctx context.Context, p model.Principal, id string) error
}

// DoseStore is the part of the vaccine catalog that slot supply draws from.
type DoseStore interface {
	FindByID(ctx context.Context, id string) (*model.Vaccine, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.Vaccine, error)
	AdjustDoses(ctx context.Context, id string, delta int) error
}

type slotService struct {
	repo      repository.SlotRepository
	vaccines  DoseStore
	validator *validator.SlotValidator
	cfg       *config.Config
}

func NewSlotService(
	repo repository.SlotRepository,
	vaccines DoseStore,
	validator *validator.SlotValidator,
	cfg *config.Config,
) SlotService {
	return &slotService{
		repo:      repo,
		vaccines:  vaccines,
		validator: validator,
		cfg:       cfg,
	}
}

// Create debits the vaccine's doses by the slot capacity in the same
// transaction that inserts the slot.
func (s *slotService) Create(ctx context.Context, p model.Principal, sl *model.Slot) error {
	if err := auth.RequireAdmin(p); err != nil {
		return err
	}

	sl.ID = ""
	sl.BookedCount = 0
	sl.Version = 0
	if err := s.validator.Validate(sl); err != nil {
		s.cfg.Log.Warn("Slot validation failed",
			"vaccine_id", sl.VaccineID,
			"error", err,
		)
		return apperrors.Validation("Slot validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.vaccines.AdjustDoses(txCtx, sl.VaccineID, -sl.MaxAppointments); err != nil {
			return err
		}
		return s.repo.Create(txCtx, sl)
	})
	if err != nil {
		s.logFailure("Failed to create slot", "", err, "vaccine_id", sl.VaccineID)
		return s.mapError(err, "", "Failed to create slot")
	}

	s.cfg.Log.Info("Slot created successfully",
		"id", sl.ID,
		"vaccine_id", sl.VaccineID,
		"date", sl.Date,
		"max_appointments", sl.MaxAppointments,
		"actor_id", p.UserID,
	)
	return nil
}

func (s *slotService) GetByID(ctx context.Context, id string) (*model.SlotListing, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Slot ID cannot be empty")
	}

	sl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logFailure("Failed to get slot by ID", id, err)
		return nil, s.mapError(err, id, "Failed to retrieve slot")
	}

	listings, err := s.hydrate(ctx, []*model.Slot{sl})
	if err != nil {
		return nil, err
	}
	return listings[0], nil
}

func (s *slotService) GetAll(ctx context.Context, filter model.SlotFilter, limit int, offset int64) ([]*model.SlotListing, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var slots []*model.Slot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		count, err = s.repo.Count(gctx, filter)
		if err != nil {
			s.cfg.Log.Error("Failed to count slots", "error", err)
			return s.mapError(err, "", "Failed to count slots")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		slots, err = s.repo.FindAll(gctx, filter, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to get slots",
				"vaccine_id", filter.VaccineID,
				"date", filter.Date,
				"limit", limit,
				"offset", offset,
				"error", err,
			)
			return s.mapError(err, "", "Failed to retrieve slots")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	listings, err := s.hydrate(ctx, slots)
	if err != nil {
		return nil, 0, err
	}
	return listings, count, nil
}

func (s *slotService) Available(ctx context.Context, vaccineID string, date string, limit int, offset int64) ([]*model.SlotListing, int64, error) {
	listings, count, err := s.GetAll(ctx, model.SlotFilter{
		VaccineID:     vaccineID,
		Date:          date,
		OnlyAvailable: true,
	}, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	s.cfg.Log.Debug("Available slot search completed",
		"vaccine_id", vaccineID,
		"date", date,
		"results", len(listings),
	)
	return listings, count, nil
}

// Update never writes booked_count. Capacity changes move the difference
// between the slot and the vaccine's dose pool.
func (s *slotService) Update(ctx context.Context, p model.Principal, id string, updates *model.SlotUpdate) (*model.Slot, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.InvalidInput("Slot ID cannot be empty")
	}

	var merged *model.Slot
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}

		merged = merge(existing, updates)
		if err := s.validator.Validate(merged); err != nil {
			s.cfg.Log.Warn("Slot validation failed",
				"id", id,
				"error", err,
			)
			return apperrors.Validation("Slot validation failed", map[string]any{
				"error": err.Error(),
			})
		}

		if delta := merged.MaxAppointments - existing.MaxAppointments; delta != 0 {
			if err := s.vaccines.AdjustDoses(txCtx, existing.VaccineID, -delta); err != nil {
				return err
			}
		}
		return s.repo.Update(txCtx, id, merged)
	})
	if err != nil {
		s.logFailure("Failed to update slot", id, err)
		return nil, s.mapError(err, id, "Failed to update slot")
	}

	s.cfg.Log.Info("Slot updated successfully",
		"id", id,
		"max_appointments", merged.MaxAppointments,
		"actor_id", p.UserID,
	)
	return merged, nil
}

func (s *slotService) Delete(ctx context.Context, p model.Principal, id string) error {
	if err := auth.RequireAdmin(p); err != nil {
		return err
	}
	if id == "" {
		return apperrors.InvalidInput("Slot ID cannot be empty")
	}

	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(txCtx, id); err != nil {
			return err
		}
		err = s.vaccines.AdjustDoses(txCtx, existing.VaccineID, existing.MaxAppointments)
		if errors.Is(err, vaccineserrors.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		s.logFailure("Failed to delete slot", id, err)
		return s.mapError(err, id, "Failed to delete slot")
	}

	s.cfg.Log.Info("Slot deleted successfully", "id", id, "actor_id", p.UserID)
	return nil
}

func (s *slotService) hydrate(ctx context.Context, slots []*model.Slot) ([]*model.SlotListing, error) {
	listings := make([]*model.SlotListing, 0, len(slots))
	if len(slots) == 0 {
		return listings, nil
	}

	ids := make([]string, 0, len(slots))
	seen := make(map[string]struct{}, len(slots))
	for _, sl := range slots {
		if _, ok := seen[sl.VaccineID]; !ok {
			seen[sl.VaccineID] = struct{}{}
			ids = append(ids, sl.VaccineID)
		}
	}

	vaccines, err := s.vaccines.FindByIDs(ctx, ids)
	if err != nil {
		s.cfg.Log.Error("Failed to load vaccines for slots", "error", err)
		return nil, s.mapError(err, "", "Failed to retrieve slots")
	}
	names := make(map[string]string, len(vaccines))
	for _, v := range vaccines {
		names[v.ID] = v.Name
	}

	for _, sl := range slots {
		listings = append(listings, &model.SlotListing{
			Slot:        sl,
			VaccineName: names[sl.VaccineID],
			Available:   sl.Available(),
		})
	}
	return listings, nil
}

func (s *slotService) logFailure(msg string, id string, err error, args ...any) {
	if apperrors.IsAppError(err) ||
		errors.Is(err, slotserrors.ErrNotFound) ||
		errors.Is(err, slotserrors.ErrInvalidID) ||
		errors.Is(err, slotserrors.ErrCapacityBelowBooked) ||
		errors.Is(err, slotserrors.ErrSlotInUse) ||
		errors.Is(err, vaccineserrors.ErrInsufficientDoses) ||
		errors.Is(err, vaccineserrors.ErrNotFound) {
		s.cfg.Log.Warn(msg, append([]any{"id", id, "error", err}, args...)...)
		return
	}
	s.cfg.Log.Error(msg, append([]any{"id", id, "error", err}, args...)...)
}

func (s *slotService) mapError(err error, id string, message string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, slotserrors.ErrNotFound), errors.Is(err, slotserrors.ErrInvalidID):
		return apperrors.SlotNotFound(id)
	case errors.Is(err, slotserrors.ErrCapacityBelowBooked):
		return apperrors.Conflict("Max appointments cannot be lower than the seats already booked")
	case errors.Is(err, slotserrors.ErrSlotInUse):
		return apperrors.Conflict("Slot has booked appointments and cannot be deleted")
	case errors.Is(err, vaccineserrors.ErrInsufficientDoses):
		return apperrors.Conflict("Not enough vaccine doses available for this capacity")
	case errors.Is(err, vaccineserrors.ErrNotFound), errors.Is(err, vaccineserrors.ErrInvalidID):
		return apperrors.NotFound("Vaccine")
	case errors.Is(err, mongotx.ErrUnavailable):
		return apperrors.StoreUnavailable(err)
	default:
		return apperrors.Internal(message, err)
	}
}

func merge(existing *model.Slot, updates *model.SlotUpdate) *model.Slot {
	merged := *existing
	if updates.Date != "" {
		merged.Date = updates.Date
	}
	if updates.StartTime != "" {
		merged.StartTime = updates.StartTime
	}
	if updates.EndTime != "" {
		merged.EndTime = updates.EndTime
	}
	if updates.MaxAppointments != nil {
		merged.MaxAppointments = *updates.MaxAppointments
	}
	return &merged
}
