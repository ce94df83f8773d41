// Package wiring assembles repositories, services and handlers for the
// service binaries.
package wiring

import (
	"fmt"
	appointmentshandler "vaxslot/internal/appointments/handler"
	appointmentsrepo "vaxslot/internal/appointments/repository"
	appointmentsservice "vaxslot/internal/appointments/service"
	appointmentsvalidator "vaxslot/internal/appointments/validator"
	"vaxslot/internal/credential"
	dashboardhandler "vaxslot/internal/dashboard/handler"
	dashboardservice "vaxslot/internal/dashboard/service"
	"vaxslot/internal/ledger"
	"vaxslot/internal/memstore"
	slotshandler "vaxslot/internal/slots/handler"
	slotsrepo "vaxslot/internal/slots/repository"
	slotsservice "vaxslot/internal/slots/service"
	slotsvalidator "vaxslot/internal/slots/validator"
	vaccineshandler "vaxslot/internal/vaccines/handler"
	vaccinesrepo "vaxslot/internal/vaccines/repository"
	vaccinesservice "vaxslot/internal/vaccines/service"
	vaccinesvalidator "vaxslot/internal/vaccines/validator"
	verificationhandler "vaxslot/internal/verification/handler"
	verificationservice "vaxslot/internal/verification/service"
	verificationvalidator "vaxslot/internal/verification/validator"
	"vaxslot/pkg/config"
	"vaxslot/pkg/contracts"
	"vaxslot/pkg/events"
	"vaxslot/pkg/sealer"
)

type Repositories struct {
	Vaccines     vaccinesrepo.VaccineRepository
	Slots        slotsrepo.SlotRepository
	Appointments appointmentsrepo.AppointmentRepository
}

// NewRepositories picks the document store named by cfg.StoreBackend. The
// Mongo backend expects cfg.SetMongo to have run.
func NewRepositories(cfg *config.Config) Repositories {
	if cfg.StoreBackend == config.StoreMemory {
		store := memstore.New()
		cfg.Log.Warn("Using in-memory document store, data is lost on restart")
		return Repositories{
			Vaccines:     store.Vaccines(),
			Slots:        store.Slots(),
			Appointments: store.Appointments(),
		}
	}

	return Repositories{
		Vaccines:     vaccinesrepo.NewMongoVaccineRepository(cfg),
		Slots:        slotsrepo.NewMongoSlotRepository(cfg),
		Appointments: appointmentsrepo.NewMongoAppointmentRepository(cfg),
	}
}

// Publisher returns the Kafka publisher when events are enabled. The
// producer must already be set on cfg.Client.
func Publisher(cfg *config.Config, source string) events.Publisher {
	if !cfg.EventsEnabled || cfg.Client.Producer == nil {
		return events.Nop()
	}
	return events.NewKafkaPublisher(cfg.Client.Producer, source)
}

func NewCodec(cfg *config.Config) (*credential.Codec, error) {
	key, err := config.DecodeKey(cfg.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("invalid credential key: %w", err)
	}
	s, err := sealer.New(cfg.SealerKey)
	if err != nil {
		return nil, fmt.Errorf("invalid sealer key: %w", err)
	}
	return credential.NewCodec(key, s, cfg.VerificationBaseURL)
}

// Catalog serves vaccine and slot administration, slot search and the
// dashboard.
func Catalog(cfg *config.Config, repos Repositories) contracts.Handlers {
	vaccineService := vaccinesservice.NewVaccineService(
		repos.Vaccines,
		repos.Slots,
		vaccinesvalidator.NewVaccineValidator(cfg.Log),
		cfg,
	)
	slotService := slotsservice.NewSlotService(
		repos.Slots,
		repos.Vaccines,
		slotsvalidator.NewSlotValidator(cfg.Log),
		cfg,
	)
	dashboardService := dashboardservice.NewDashboardService(
		repos.Appointments,
		repos.Slots,
		repos.Vaccines,
		cfg,
	)

	cfg.Log.Info("Catalog services initialized")
	return contracts.Handlers{
		vaccineshandler.NewVaccineHandler(vaccineService, cfg.Log),
		slotshandler.NewSlotHandler(slotService, cfg.Log),
		dashboardhandler.NewDashboardHandler(dashboardService, cfg.Log),
	}
}

// Appointments serves booking, cancellation, status changes and credential
// verification.
func Appointments(cfg *config.Config, repos Repositories, publisher events.Publisher) (contracts.Handlers, error) {
	codec, err := NewCodec(cfg)
	if err != nil {
		return nil, err
	}

	seats := ledger.New(repos.Slots, ledger.Config{
		MaxAttempts:    cfg.LedgerMaxAttempts,
		InitialBackoff: cfg.LedgerBackoffInitial,
		MaxBackoff:     cfg.LedgerBackoffMax,
	}, cfg.Log)

	appointmentService := appointmentsservice.NewAppointmentService(
		repos.Appointments,
		seats,
		repos.Slots,
		repos.Vaccines,
		codec,
		publisher,
		appointmentsvalidator.NewAppointmentValidator(cfg.Log),
		cfg,
	)
	verificationService := verificationservice.NewVerificationService(
		appointmentService,
		codec,
		verificationvalidator.NewVerificationValidator(cfg.Log),
		cfg,
	)

	cfg.Log.Info("Appointment services initialized")
	return contracts.Handlers{
		appointmentshandler.NewAppointmentHandler(appointmentService, cfg.Log),
		verificationhandler.NewVerificationHandler(verificationService, cfg.Log),
	}, nil
}

// Connect opens the external connections the configured backends need.
func Connect(cfg *config.Config) {
	if cfg.StoreBackend == config.StoreMongo {
		cfg.SetMongo()
	}
	if cfg.EventsEnabled {
		cfg.SetProducer()
	}
}
