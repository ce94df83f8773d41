package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
	appointmentserrors "vaxslot/internal/appointments/errors"
	"vaxslot/pkg/config"
	mongotx "vaxslot/pkg/db/mongo"
	"vaxslot/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Appointments"
)

type AppointmentRepository interface {
	// Create fails with ErrAlreadyBooked when the user already holds the slot.
	Create(ctx context.Context, a *model.Appointment) error
	FindByID(ctx context.Context, id string) (*model.Appointment, error)
	FindByUserAndSlot(ctx context.Context, userID string, slotID string) (*model.Appointment, error)
	FindByUser(ctx context.Context, userID string) ([]*model.Appointment, error)
	FindAll(ctx context.Context, status model.AppointmentStatus, limit int, offset int64) ([]*model.Appointment, error)
	Count(ctx context.Context, status model.AppointmentStatus) (int64, error)
	CountBookedSince(ctx context.Context, since time.Time) (int64, error)
	SetCredential(ctx context.Context, id string, token string) error
	UpdateStatus(ctx context.Context, id string, status model.AppointmentStatus, token string) error
	// DeleteScheduled removes the appointment only while it is Scheduled and
	// reports whether a document was removed.
	DeleteScheduled(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type mongoAppointmentRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoAppointmentRepository(cfg *config.Config) AppointmentRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAppointmentRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

// Create inserts a. A caller-assigned ID is stored as the ObjectID _id;
// without one a new id is generated.
func (r *mongoAppointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID := primitive.NewObjectID()
	if a.ID != "" {
		oid, err := primitive.ObjectIDFromHex(a.ID)
		if err != nil {
			return fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, a.ID)
		}
		objectID = oid
	}

	if a.BookedAt.IsZero() {
		a.BookedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	a.UpdatedAt = a.BookedAt

	doc, err := appointmentDocument(a, objectID)
	if err != nil {
		return fmt.Errorf("failed to encode appointment: %w", err)
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: user %s slot %s", appointmentserrors.ErrAlreadyBooked, a.UserID, a.SlotID)
		}
		return fmt.Errorf("failed to create appointment: %w", mongotx.Classify(err))
	}

	a.ID = objectID.Hex()
	return nil
}

// appointmentDocument encodes a with _id as an ObjectID, matching the
// documents the driver generates ids for.
func appointmentDocument(a *model.Appointment, id primitive.ObjectID) (bson.D, error) {
	fields := *a
	fields.ID = ""
	raw, err := bson.Marshal(fields)
	if err != nil {
		return nil, err
	}

	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return append(bson.D{{Key: "_id", Value: id}}, doc...), nil
}

func (r *mongoAppointmentRepository) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, id)
	}

	return r.findOne(ctx, bson.M{"_id": objectID}, id)
}

func (r *mongoAppointmentRepository) FindByUserAndSlot(ctx context.Context, userID string, slotID string) (*model.Appointment, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	return r.findOne(ctx, bson.M{"user_id": userID, "slot_id": slotID}, userID+"/"+slotID)
}

func (r *mongoAppointmentRepository) findOne(ctx context.Context, filter bson.M, ref string) (*model.Appointment, error) {
	var a model.Appointment
	err := r.collection.FindOne(ctx, filter).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", appointmentserrors.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("failed to find appointment: %w", mongotx.Classify(err))
	}
	return &a, nil
}

func (r *mongoAppointmentRepository) FindByUser(ctx context.Context, userID string) ([]*model.Appointment, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "booked_at", Value: -1}}).
		SetLimit(int64(config.DefaultPaginationLimit))

	return r.find(ctx, bson.M{"user_id": userID}, opts)
}

func (r *mongoAppointmentRepository) FindAll(ctx context.Context, status model.AppointmentStatus, limit int, offset int64) ([]*model.Appointment, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "booked_at", Value: -1}})

	return r.find(ctx, statusFilter(status), opts)
}

func (r *mongoAppointmentRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Appointment, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", mongotx.Classify(err))
	}
	defer cursor.Close(ctx)

	appointments := []*model.Appointment{}
	if err = cursor.All(ctx, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appointments, nil
}

func statusFilter(status model.AppointmentStatus) bson.M {
	if status == "" {
		return bson.M{}
	}
	return bson.M{"status": status}
}

func (r *mongoAppointmentRepository) Count(ctx context.Context, status model.AppointmentStatus) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, statusFilter(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", mongotx.Classify(err))
	}
	return count, nil
}

func (r *mongoAppointmentRepository) CountBookedSince(ctx context.Context, since time.Time) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"booked_at": bson.M{"$gte": since}})
	if err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", mongotx.Classify(err))
	}
	return count, nil
}

func (r *mongoAppointmentRepository) SetCredential(ctx context.Context, id string, token string) error {
	return r.update(ctx, id, bson.M{"credential_token": token})
}

func (r *mongoAppointmentRepository) UpdateStatus(ctx context.Context, id string, status model.AppointmentStatus, token string) error {
	return r.update(ctx, id, bson.M{"status": status, "credential_token": token})
}

func (r *mongoAppointmentRepository) update(ctx context.Context, id string, set bson.M) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, id)
	}

	set["updated_at"] = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", mongotx.Classify(err))
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", appointmentserrors.ErrNotFound, id)
	}
	return nil
}

func (r *mongoAppointmentRepository) DeleteScheduled(ctx context.Context, id string) (bool, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID, "status": model.StatusScheduled})
	if err != nil {
		return false, fmt.Errorf("failed to delete appointment: %w", mongotx.Classify(err))
	}
	return result.DeletedCount > 0, nil
}

func (r *mongoAppointmentRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", mongotx.Classify(err))
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", appointmentserrors.ErrNotFound, id)
	}
	return nil
}
