package service

import (
	"context"
	vaccineserrors "vaxslot/internal/vaccines/errors"
	"vaxslot/internal/vaccines/repository"
	"vaxslot/internal/vaccines/validator"
	"vaxslot/pkg/auth"
	"vaxslot/pkg/config"
	mongotx "vaxslot/pkg/db/mongo"
	apperrors "vaxslot/pkg/errors"
	"vaxslot/pkg/model"
	"vaxslot/pkg/sanitizer"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

type VaccineService interface {
	Create(ctx context.Context, p model.Principal, v *model.Vaccine) error
	GetByID(ctx context.Context, id string) (*model.Vaccine, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Vaccine, int64, error)
	Update(ctx context.Context, p model.Principal, id string, updates *model.VaccineUpdate) (*model.Vaccine, error)
	Delete(ctx context.Context, p model.Principal, id string) error
}

// SlotCounter reports how many slots reference a vaccine.
type SlotCounter interface {
	CountByVaccine(ctx context.Context, vaccineID string) (int64, error)
}

type vaccineService struct {
	repo      repository.VaccineRepository
	slots     SlotCounter
	validator *validator.VaccineValidator
	cfg       *config.Config
}

func NewVaccineService(
	repo repository.VaccineRepository,
	slots SlotCounter,
	validator *validator.VaccineValidator,
	cfg *config.Config,
) VaccineService {
	return &vaccineService{
		repo:      repo,
		slots:     slots,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *vaccineService) Create(ctx context.Context, p model.Principal, v *model.Vaccine) error {
	if err := auth.RequireAdmin(p); err != nil {
		return err
	}

	v.ID = ""
	s.sanitize(v)
	if err := s.validator.Validate(v); err != nil {
		s.cfg.Log.Warn("Vaccine validation failed",
			"name", v.Name,
			"error", err,
		)
		return apperrors.Validation("Vaccine validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.repo.Create(ctx, v); err != nil {
		s.cfg.Log.Error("Failed to create vaccine",
			"name", v.Name,
			"error", err,
		)
		return s.mapError(err, "Failed to create vaccine")
	}

	s.cfg.Log.Info("Vaccine created successfully",
		"id", v.ID,
		"name", v.Name,
		"doses_available", v.DosesAvailable,
		"actor_id", p.UserID,
	)
	return nil
}

func (s *vaccineService) GetByID(ctx context.Context, id string) (*model.Vaccine, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Vaccine ID cannot be empty")
	}

	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, vaccineserrors.ErrNotFound) && !errors.Is(err, vaccineserrors.ErrInvalidID) {
			s.cfg.Log.Error("Failed to get vaccine by ID",
				"id", id,
				"error", err,
			)
		}
		return nil, s.mapError(err, "Failed to retrieve vaccine")
	}
	return v, nil
}

func (s *vaccineService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Vaccine, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var vaccines []*model.Vaccine

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		count, err = s.repo.Count(gctx)
		if err != nil {
			s.cfg.Log.Error("Failed to count vaccines", "error", err)
			return s.mapError(err, "Failed to count vaccines")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		vaccines, err = s.repo.FindAll(gctx, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to get all vaccines",
				"limit", limit,
				"offset", offset,
				"error", err,
			)
			return s.mapError(err, "Failed to retrieve vaccines")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return vaccines, count, nil
}

func (s *vaccineService) Update(ctx context.Context, p model.Principal, id string, updates *model.VaccineUpdate) (*model.Vaccine, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.InvalidInput("Vaccine ID cannot be empty")
	}

	var merged *model.Vaccine
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}

		merged = s.merge(existing, updates)
		if err := s.validator.Validate(merged); err != nil {
			s.cfg.Log.Warn("Vaccine validation failed",
				"id", id,
				"error", err,
			)
			return apperrors.Validation("Vaccine validation failed", map[string]any{
				"error": err.Error(),
			})
		}
		return s.repo.Update(txCtx, id, merged)
	})
	if err != nil {
		if !apperrors.IsAppError(err) && !errors.Is(err, vaccineserrors.ErrNotFound) {
			s.cfg.Log.Error("Failed to update vaccine",
				"id", id,
				"error", err,
			)
		}
		return nil, s.mapError(err, "Failed to update vaccine")
	}

	s.cfg.Log.Info("Vaccine updated successfully",
		"id", id,
		"doses_available", merged.DosesAvailable,
		"actor_id", p.UserID,
	)
	return merged, nil
}

func (s *vaccineService) Delete(ctx context.Context, p model.Principal, id string) error {
	if err := auth.RequireAdmin(p); err != nil {
		return err
	}
	if id == "" {
		return apperrors.InvalidInput("Vaccine ID cannot be empty")
	}

	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		inUse, err := s.slots.CountByVaccine(txCtx, id)
		if err != nil {
			return err
		}
		if inUse > 0 {
			return apperrors.Conflict("Vaccine still has slots; delete them first").WithDetails(map[string]any{
				"slots": inUse,
			})
		}
		return s.repo.Delete(txCtx, id)
	})
	if err != nil {
		if !apperrors.IsAppError(err) && !errors.Is(err, vaccineserrors.ErrNotFound) {
			s.cfg.Log.Error("Failed to delete vaccine",
				"id", id,
				"error", err,
			)
		}
		return s.mapError(err, "Failed to delete vaccine")
	}

	s.cfg.Log.Info("Vaccine deleted successfully", "id", id, "actor_id", p.UserID)
	return nil
}

func (s *vaccineService) mapError(err error, message string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, vaccineserrors.ErrNotFound):
		return apperrors.NotFound("Vaccine")
	case errors.Is(err, vaccineserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid vaccine ID format")
	case errors.Is(err, mongotx.ErrUnavailable):
		return apperrors.StoreUnavailable(err)
	default:
		return apperrors.Internal(message, err)
	}
}

func (s *vaccineService) sanitize(v *model.Vaccine) {
	v.Name = sanitizer.SanitizeText(v.Name)
	v.Manufacturer = sanitizer.SanitizeText(v.Manufacturer)
	v.Description = sanitizer.SanitizeText(v.Description)
}

func (s *vaccineService) merge(existing *model.Vaccine, updates *model.VaccineUpdate) *model.Vaccine {
	merged := *existing
	if updates.Name != "" {
		merged.Name = sanitizer.SanitizeText(updates.Name)
	}
	if updates.Manufacturer != "" {
		merged.Manufacturer = sanitizer.SanitizeText(updates.Manufacturer)
	}
	if updates.Description != "" {
		merged.Description = sanitizer.SanitizeText(updates.Description)
	}
	if updates.DosesAvailable != nil {
		merged.DosesAvailable = *updates.DosesAvailable
	}
	return &merged
}
