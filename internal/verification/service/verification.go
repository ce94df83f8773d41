// Package service resolves scanned credentials back to live appointments.
package service

import (
	"context"
	"vaxslot/internal/credential"
	"vaxslot/internal/verification/validator"
	"vaxslot/pkg/auth"
	"vaxslot/pkg/config"
	apperrors "vaxslot/pkg/errors"
	"vaxslot/pkg/model"
)

type VerificationService interface {
	Resolve(ctx context.Context, p model.Principal, req *model.VerifyRequest) (*model.AppointmentView, error)
	ResolveReference(ctx context.Context, p model.Principal, ref string) (*model.AppointmentView, error)
	ApplyStatus(ctx context.Context, p model.Principal, id string, req *model.StatusUpdateRequest) (*model.Appointment, error)
}

// Appointments is the booking service surface verification builds on.
type Appointments interface {
	GetByID(ctx context.Context, p model.Principal, id string) (*model.AppointmentView, error)
	UpdateStatus(ctx context.Context, p model.Principal, id string, req *model.StatusUpdateRequest) (*model.Appointment, error)
}

type TokenCodec interface {
	Decode(raw string) (*credential.Token, error)
	Verify(tok *credential.Token, a *model.Appointment) (bool, error)
	ResolveReference(ref string) (appointmentID string, userID string, err error)
}

type verificationService struct {
	appointments Appointments
	codec        TokenCodec
	validator    *validator.VerificationValidator
	cfg          *config.Config
}

func NewVerificationService(appointments Appointments, codec TokenCodec, scans *validator.VerificationValidator, cfg *config.Config) VerificationService {
	return &verificationService{
		appointments: appointments,
		codec:        codec,
		validator:    scans,
		cfg:          cfg,
	}
}

// Resolve decodes a scanned token and joins it with the appointment on
// record. The digest must match the live record; a status that moved on
// since issuance is reported as stale.
func (s *verificationService) Resolve(ctx context.Context, p model.Principal, req *model.VerifyRequest) (*model.AppointmentView, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateScan(req); err != nil {
		s.cfg.Log.Warn("Scanned credential rejected", "user_id", p.UserID, "error", err)
		return nil, apperrors.MalformedToken(err)
	}

	tok, err := s.codec.Decode(req.Token)
	if err != nil {
		s.cfg.Log.Warn("Credential decode failed", "user_id", p.UserID, "error", err)
		return nil, apperrors.MalformedToken(err)
	}

	view, err := s.appointments.GetByID(ctx, p, tok.AppointmentID)
	if err != nil {
		return nil, err
	}

	ok, err := s.codec.Verify(tok, view.Appointment)
	if err != nil {
		s.cfg.Log.Error("Credential digest failed", "id", tok.AppointmentID, "error", err)
		return nil, apperrors.Internal("Failed to verify credential", err)
	}
	if !ok {
		s.cfg.Log.Warn("Credential digest mismatch",
			"id", tok.AppointmentID,
			"user_id", p.UserID,
		)
		return nil, apperrors.CredentialMismatch(tok.AppointmentID)
	}

	view.CredentialStatus = tok.Status
	view.Stale = tok.Status != view.Appointment.Status

	s.cfg.Log.Info("Credential resolved",
		"id", tok.AppointmentID,
		"status", view.Appointment.Status,
		"stale", view.Stale,
		"actor_id", p.UserID,
	)
	return view, nil
}

// ResolveReference opens the sealed reference carried in a verification URL.
func (s *verificationService) ResolveReference(ctx context.Context, p model.Principal, ref string) (*model.AppointmentView, error) {
	if err := auth.RequireAuthenticated(p); err != nil {
		return nil, err
	}

	appointmentID, userID, err := s.codec.ResolveReference(ref)
	if err != nil {
		s.cfg.Log.Warn("Verification reference rejected", "user_id", p.UserID, "error", err)
		return nil, apperrors.MalformedToken(err)
	}

	view, err := s.appointments.GetByID(ctx, p, appointmentID)
	if err != nil {
		return nil, err
	}
	if view.Appointment.UserID != userID {
		s.cfg.Log.Warn("Verification reference owner mismatch", "id", appointmentID)
		return nil, apperrors.CredentialMismatch(appointmentID)
	}

	if view.Appointment.CredentialToken != "" {
		if tok, err := s.codec.Decode(view.Appointment.CredentialToken); err == nil {
			view.CredentialStatus = tok.Status
		}
	}
	return view, nil
}

func (s *verificationService) ApplyStatus(ctx context.Context, p model.Principal, id string, req *model.StatusUpdateRequest) (*model.Appointment, error) {
	return s.appointments.UpdateStatus(ctx, p, id, req)
}
