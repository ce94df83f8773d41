package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"vaxslot/internal/appointments/repository"
	"vaxslot/internal/appointments/validator"
	"vaxslot/internal/credential"
	"vaxslot/internal/ledger"
	"vaxslot/internal/memstore"
	"vaxslot/pkg/config"
	mongotx "vaxslot/pkg/db/mongo"
	apperrors "vaxslot/pkg/errors"
	"vaxslot/pkg/events"
	"vaxslot/pkg/logger"
	"vaxslot/pkg/model"
	"vaxslot/pkg/sealer"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type failingIssuer struct {
	CredentialIssuer
	err error
}

func (f *failingIssuer) Encode(*model.Appointment, *model.Slot, *model.Vaccine) (string, *credential.Token, error) {
	return "", nil, f.err
}

// lostAckRepository stores the first appointment and then reports the write
// as failed, the way a driver timeout after a committed insert does.
type lostAckRepository struct {
	repository.AppointmentRepository
	once sync.Once
}

func (r *lostAckRepository) Create(ctx context.Context, a *model.Appointment) error {
	if err := r.AppointmentRepository.Create(ctx, a); err != nil {
		return err
	}
	var failed bool
	r.once.Do(func() { failed = true })
	if failed {
		return errors.Mark(context.DeadlineExceeded, mongotx.ErrUnavailable)
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.AppointmentEvent
}

func (r *recordingPublisher) Publish(_ context.Context, e events.AppointmentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc       AppointmentService
	store     *memstore.Store
	codec     *credential.Codec
	publisher *recordingPublisher
	slotID    string
}

func newFixture(t *testing.T, capacity int, wrap func(CredentialIssuer) CredentialIssuer) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, capacity, wrap, nil)
}

func newFixtureWithRepo(
	t *testing.T,
	capacity int,
	wrap func(CredentialIssuer) CredentialIssuer,
	wrapRepo func(repository.AppointmentRepository) repository.AppointmentRepository,
) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logger.Discard()

	store := memstore.New()
	vaccine := &model.Vaccine{Name: "Measles", Manufacturer: "Acme", DosesAvailable: 100}
	require.NoError(t, store.Vaccines().Create(ctx, vaccine))
	slot := &model.Slot{
		VaccineID:       vaccine.ID,
		Date:            "2026-11-02",
		StartTime:       "09:00",
		EndTime:         "10:00",
		MaxAppointments: capacity,
	}
	require.NoError(t, store.Slots().Create(ctx, slot))

	s, err := sealer.New(config.DefaultSealerKey)
	require.NoError(t, err)
	codec, err := credential.NewCodec(testKey, s, "http://localhost:8080")
	require.NoError(t, err)

	var issuer CredentialIssuer = codec
	if wrap != nil {
		issuer = wrap(codec)
	}

	seats := ledger.New(store.Slots(), ledger.Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, log)
	publisher := &recordingPublisher{}
	cfg := &config.Config{Log: log, QRSize: 128}

	var repo repository.AppointmentRepository = store.Appointments()
	if wrapRepo != nil {
		repo = wrapRepo(repo)
	}

	svc := NewAppointmentService(
		repo,
		seats,
		store.Slots(),
		store.Vaccines(),
		issuer,
		publisher,
		validator.NewAppointmentValidator(log),
		cfg,
	)
	return &fixture{svc: svc, store: store, codec: codec, publisher: publisher, slotID: slot.ID}
}

func patient(n int) model.Principal {
	return model.Principal{
		UserID: fmt.Sprintf("user-%d", n),
		Email:  fmt.Sprintf("user-%d@example.com", n),
		Role:   model.RolePatient,
	}
}

var admin = model.Principal{UserID: "admin-1", Email: "admin@example.com", Role: model.RoleAdmin}

func (f *fixture) bookedCount(t *testing.T) int {
	t.Helper()
	sl, err := f.store.Slots().FindByID(context.Background(), f.slotID)
	require.NoError(t, err)
	return sl.BookedCount
}

func (f *fixture) appointmentCount(t *testing.T) int64 {
	t.Helper()
	n, err := f.store.Appointments().Count(context.Background(), "")
	require.NoError(t, err)
	return n
}

func TestBook_IssuesCredential(t *testing.T) {
	f := newFixture(t, 3, nil)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, patient(1), &model.BookingRequest{SlotID: f.slotID})
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, a.Status)
	assert.Equal(t, "user-1@example.com", a.UserEmail)
	assert.Equal(t, 1, f.bookedCount(t))

	tok, err := f.codec.Decode(a.CredentialToken)
	require.NoError(t, err)
	assert.Equal(t, a.ID, tok.AppointmentID)
	assert.Equal(t, "Measles", tok.Vaccine)
	assert.Equal(t, "2026-11-02", tok.Date)
	assert.Equal(t, "09:00 - 10:00", tok.Time)

	stored, err := f.store.Appointments().FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.CredentialToken, stored.CredentialToken)
	assert.Equal(t, []string{events.AppointmentBooked}, f.publisher.types())
}

func TestBook_RequiresAuthentication(t *testing.T) {
	f := newFixture(t, 1, nil)

	_, err := f.svc.Book(context.Background(), model.Principal{}, &model.BookingRequest{SlotID: f.slotID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthenticated))
	assert.Equal(t, 0, f.bookedCount(t))
}

func TestBook_ConcurrentCapacity(t *testing.T) {
	const capacity = 5
	const callers = 40
	f := newFixture(t, capacity, nil)

	var booked, full, other atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range callers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			_, err := f.svc.Book(context.Background(), patient(n), &model.BookingRequest{SlotID: f.slotID})
			switch {
			case err == nil:
				booked.Add(1)
			case apperrors.HasCode(err, apperrors.CodeSlotFull):
				full.Add(1)
			default:
				other.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, capacity, booked.Load())
	assert.EqualValues(t, callers-capacity, full.Load())
	assert.Zero(t, other.Load())
	assert.Equal(t, capacity, f.bookedCount(t))
	assert.EqualValues(t, capacity, f.appointmentCount(t))
}

func TestBook_SingleSeatRace(t *testing.T) {
	f := newFixture(t, 1, nil)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = f.svc.Book(context.Background(), patient(n), &model.BookingRequest{SlotID: f.slotID})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.HasCode(err, apperrors.CodeSlotFull), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.bookedCount(t))

	all, _, err := f.svc.GetAll(context.Background(), admin, model.StatusScheduled, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBook_AlreadyBooked(t *testing.T) {
	f := newFixture(t, 3, nil)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, patient(1), &model.BookingRequest{SlotID: f.slotID})
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, patient(1), &model.BookingRequest{SlotID: f.slotID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyBooked))
	assert.Equal(t, 1, f.bookedCount(t))
}

func TestBook_SlotNotFound(t *testing.T) {
	f := newFixture(t, 1, nil)

	_, err := f.svc.Book(context.Background(), patient(1), &model.BookingRequest{SlotID: "65f000000000000000000000"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSlotNotFound))
	assert.EqualValues(t, 0, f.appointmentCount(t))
}

func TestBook_InvalidRequest(t *testing.T) {
	f := newFixture(t, 1, nil)

	_, err := f.svc.Book(context.Background(), patient(1), &model.BookingRequest{SlotID: "not-an-id"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestBook_CompensatesWhenCredentialFails(t *testing.T) {
	f := newFixture(t, 2, func(c CredentialIssuer) CredentialIssuer {
		return &failingIssuer{CredentialIssuer: c, err: fmt.Errorf("signer offline")}
	})

	_, err := f.svc.Book(context.Background(), patient(1), &model.BookingRequest{SlotID: f.slotID})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternal))

	assert.Equal(t, 0, f.bookedCount(t))
	assert.EqualValues(t, 0, f.appointmentCount(t))
	assert.Empty(t, f.publisher.types())
}

func TestBook_CompensatesCommittedInsertThatReportedFailure(t *testing.T) {
	f := newFixtureWithRepo(t, 1, nil, func(r repository.AppointmentRepository) repository.AppointmentRepository {
		return &lostAckRepository{AppointmentRepository: r}
	})
	ctx := context.Background()

	_, err := f.svc.Book(ctx, patient(1), &model.BookingRequest{SlotID: f.slotID})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStoreUnavailable), "got %v", err)
	assert.Equal(t, 0, f.bookedCount(t))
	assert.EqualValues(t, 0, f.appointmentCount(t))

	_, err = f.svc.Book(ctx, patient(2), &model.BookingRequest{SlotID: f.slotID})
	require.NoError(t, err)
	assert.Equal(t, 1, f.bookedCount(t))
	assert.EqualValues(t, 1, f.appointmentCount(t))
}

func TestBook_CompensatesWhenRequestCancelled(t *testing.T) {
	f := newFixture(t, 2, func(c CredentialIssuer) CredentialIssuer {
		return &failingIssuer{CredentialIssuer: c, err: context.Canceled}
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Book(ctx, patient(1), &model.BookingRequest{SlotID: f.slotID})
	require.Error(t, err)
	assert.Equal(t, 0, f.bookedCount(t))
	assert.EqualValues(t, 0, f.appointmentCount(t))
}

func TestCancel_ReleasesSeatForAnotherPatient(t *testing.T) {
	f := newFixture(t, 1, nil)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, patient(1), &model.BookingRequest{SlotID: f.slotID})
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, patient(2), &model.BookingRequest{SlotID: f.slotID})
	require.True(t, apperrors.HasCode(err, apperrors.CodeSlotFull))

	require.NoError(t, f.svc.Cancel(ctx, patient(1), a.ID))
	assert.Equal(t, 0, f.bookedCount(t))

	_, err = f.svc.Book(ctx, patient(2), &model.BookingRequest{SlotID: f.slotID})
	require.NoError(t, err)
	assert.Equal(t, 1, f.bookedCount(t))
	assert.Equal(t, []string{
		events.AppointmentBooked,
		events.AppointmentCancelled,
		events.AppointmentBooked,
	}, f.publisher.types())
}

func TestCancel_Errors(t *testing.T) {
	f := newFixture(t, 2, nil)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, patient(1), &model.BookingRequest{SlotID: f.slotID})
	require.NoError(t, err)

	t.Run("unknown appointment", func(t *testing.T) {
		err := f.svc.Cancel(ctx, patient(1), "65f000000000000000000000")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeAppointmentNotFound))
	})

	t.Run("other patient", func(t *testing.T) {
		err := f.svc.Cancel(ctx, patient(2), a.ID)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeAppointmentNotFound))
		assert.Equal(t, 1, f.bookedCount(t))
	})

	t.Run("not scheduled", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, admin, a.ID, &model.StatusUpdateRequest{Status: model.StatusInProgress})
		require.NoError(t, err)

		err = f.svc.Cancel(ctx, patient(1), a.ID)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
		assert.Equal(t, 1, f.bookedCount(t))
	})

	t.Run("twice", func(t *testing.T) {
		b, err := f.svc.Book(ctx, patient(3), &model.BookingRequest{SlotID: f.slotID})
		require.NoError(t, err)
		require.NoError(t, f.svc.Cancel(ctx, patient(3), b.ID))

		err = f.svc.Cancel(ctx, patient(3), b.ID)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeAppointmentNotFound))
		assert.Equal(t, 1, f.bookedCount(t))
	})
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, 2, nil)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, patient(1), &model.BookingRequest{SlotID: f.slotID})
	require.NoError(t, err)

	t.Run("requires admin", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, patient(1), a.ID, &model.StatusUpdateRequest{Status: model.StatusCompleted})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, admin, a.ID, &model.StatusUpdateRequest{Status: "Teleported"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
	})

	t.Run("unknown appointment", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, admin, "65f000000000000000000000", &model.StatusUpdateRequest{Status: model.StatusCompleted})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeAppointmentNotFound))
	})

	t.Run("reissues credential", func(t *testing.T) {
		updated, err := f.svc.UpdateStatus(ctx, admin, a.ID, &model.StatusUpdateRequest{Status: model.StatusCompleted})
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, updated.Status)

		tok, err := f.codec.Decode(updated.CredentialToken)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, tok.Status)

		ok, err := f.codec.Verify(tok, updated)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("any status to any status", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, admin, a.ID, &model.StatusUpdateRequest{Status: model.StatusScheduled})
		require.NoError(t, err)
	})

	t.Run("normalizes spacing", func(t *testing.T) {
		updated, err := f.svc.UpdateStatus(ctx, admin, a.ID, &model.StatusUpdateRequest{Status: " In  Progress "})
		require.NoError(t, err)
		assert.Equal(t, model.StatusInProgress, updated.Status)
	})
}

func TestUpdateStatus_CancelledByProviderKeepsSeat(t *testing.T) {
	f := newFixture(t, 1, nil)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, patient(1), &model.BookingRequest{SlotID: f.slotID})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, admin, a.ID, &model.StatusUpdateRequest{Status: model.StatusCancelledByProvider})
	require.NoError(t, err)
	assert.Equal(t, 1, f.bookedCount(t))

	_, err = f.svc.Book(ctx, patient(2), &model.BookingRequest{SlotID: f.slotID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSlotFull))
}

func TestReadModels(t *testing.T) {
	f := newFixture(t, 3, nil)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, patient(1), &model.BookingRequest{SlotID: f.slotID})
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, patient(2), &model.BookingRequest{SlotID: f.slotID})
	require.NoError(t, err)

	view, err := f.svc.GetByID(ctx, patient(1), a.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Slot)
	require.NotNil(t, view.Vaccine)
	assert.Equal(t, "Measles", view.Vaccine.Name)

	_, err = f.svc.GetByID(ctx, patient(2), a.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAppointmentNotFound))

	_, err = f.svc.GetByID(ctx, admin, a.ID)
	assert.NoError(t, err)

	mine, err := f.svc.ListMine(ctx, patient(1))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].Appointment.ID)
	assert.Equal(t, f.slotID, mine[0].Slot.ID)

	_, _, err = f.svc.GetAll(ctx, patient(1), "", 10, 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	all, total, err := f.svc.GetAll(ctx, admin, "", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	_, _, err = f.svc.GetAll(ctx, admin, "Teleported", 10, 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}

func TestCredentialImage(t *testing.T) {
	f := newFixture(t, 1, nil)
	ctx := context.Background()

	a, err := f.svc.Book(ctx, patient(1), &model.BookingRequest{SlotID: f.slotID})
	require.NoError(t, err)

	png, err := f.svc.CredentialImage(ctx, patient(1), a.ID)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	_, err = f.svc.CredentialImage(ctx, patient(2), a.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAppointmentNotFound))
}
