package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
	slotserrors "vaxslot/internal/slots/errors"
	"vaxslot/pkg/config"
	mongotx "vaxslot/pkg/db/mongo"
	"vaxslot/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Slots"
)

type SlotRepository interface {
	Create(ctx context.Context, s *model.Slot) error
	FindByID(ctx context.Context, id string) (*model.Slot, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.Slot, error)
	FindAll(ctx context.Context, filter model.SlotFilter, limit int, offset int64) ([]*model.Slot, error)
	Count(ctx context.Context, filter model.SlotFilter) (int64, error)
	CountByVaccine(ctx context.Context, vaccineID string) (int64, error)
	// Update rewrites the admin fields, failing with ErrCapacityBelowBooked
	// when the new capacity is lower than the seats already booked.
	Update(ctx context.Context, id string, s *model.Slot) error
	// Delete removes the slot only while no seat is booked.
	Delete(ctx context.Context, id string) error
	// ReserveSeat increments booked_count if a seat is free and returns the
	// slot as it was before the increment.
	ReserveSeat(ctx context.Context, id string) (*model.Slot, error)
	// ReleaseSeat decrements booked_count, never below zero.
	ReleaseSeat(ctx context.Context, id string) error
	SeatTotals(ctx context.Context) (model.SeatTotals, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoSlotRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoSlotRepository(cfg *config.Config) SlotRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoSlotRepository) Create(ctx context.Context, s *model.Slot) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	s.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	s.BookedCount = 0
	s.Version = 0
	result, err := r.collection.InsertOne(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", mongotx.Classify(err))
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		s.ID = oid.Hex()
	}
	return nil
}

func (r *mongoSlotRepository) FindByID(ctx context.Context, id string) (*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	var s model.Slot
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find slot: %w", mongotx.Classify(err))
	}
	return &s, nil
}

func (r *mongoSlotRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			objectIDs = append(objectIDs, oid)
		}
	}
	if len(objectIDs) == 0 {
		return []*model.Slot{}, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": objectIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", mongotx.Classify(err))
	}
	defer cursor.Close(ctx)

	slots := []*model.Slot{}
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}
	return slots, nil
}

func buildFilter(f model.SlotFilter) bson.M {
	filter := bson.M{}
	if f.VaccineID != "" {
		filter["vaccine_id"] = f.VaccineID
	}
	if f.Date != "" {
		filter["date"] = f.Date
	}
	if f.OnlyAvailable {
		filter["$expr"] = bson.M{"$lt": bson.A{"$booked_count", "$max_appointments"}}
	}
	return filter
}

func (r *mongoSlotRepository) FindAll(ctx context.Context, filter model.SlotFilter, limit int, offset int64) ([]*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", mongotx.Classify(err))
	}
	defer cursor.Close(ctx)

	slots := []*model.Slot{}
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}
	return slots, nil
}

func (r *mongoSlotRepository) Count(ctx context.Context, filter model.SlotFilter) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count slots: %w", mongotx.Classify(err))
	}
	return count, nil
}

func (r *mongoSlotRepository) CountByVaccine(ctx context.Context, vaccineID string) (int64, error) {
	return r.Count(ctx, model.SlotFilter{VaccineID: vaccineID})
}

func (r *mongoSlotRepository) Update(ctx context.Context, id string, s *model.Slot) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":          objectID,
		"booked_count": bson.M{"$lte": s.MaxAppointments},
	}
	update := bson.M{
		"$set": bson.M{
			"date":             s.Date,
			"start_time":       s.StartTime,
			"end_time":         s.EndTime,
			"max_appointments": s.MaxAppointments,
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update slot: %w", mongotx.Classify(err))
	}
	if result.MatchedCount > 0 {
		return nil
	}
	return r.missReason(ctx, objectID, id, slotserrors.ErrCapacityBelowBooked)
}

func (r *mongoSlotRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID, "booked_count": 0})
	if err != nil {
		return fmt.Errorf("failed to delete slot: %w", mongotx.Classify(err))
	}
	if result.DeletedCount > 0 {
		return nil
	}
	return r.missReason(ctx, objectID, id, slotserrors.ErrSlotInUse)
}

func (r *mongoSlotRepository) ReserveSeat(ctx context.Context, id string) (*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":   objectID,
		"$expr": bson.M{"$lt": bson.A{"$booked_count", "$max_appointments"}},
	}
	update := bson.M{"$inc": bson.M{"booked_count": 1, "version": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before model.Slot
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&before)
	if err == nil {
		return &before, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to reserve seat: %w", mongotx.Classify(err))
	}
	return nil, r.missReason(ctx, objectID, id, slotserrors.ErrSlotFull)
}

func (r *mongoSlotRepository) ReleaseSeat(ctx context.Context, id string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID, "booked_count": bson.M{"$gt": 0}}
	update := bson.M{"$inc": bson.M{"booked_count": -1, "version": 1}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", mongotx.Classify(err))
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Nothing booked: the floor makes this a no-op unless the slot is gone.
	return r.missReason(ctx, objectID, id, nil)
}

func (r *mongoSlotRepository) SeatTotals(ctx context.Context) (model.SeatTotals, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":      nil,
			"slots":    bson.M{"$sum": 1},
			"booked":   bson.M{"$sum": "$booked_count"},
			"capacity": bson.M{"$sum": "$max_appointments"},
		}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return model.SeatTotals{}, fmt.Errorf("failed to aggregate seats: %w", mongotx.Classify(err))
	}
	defer cursor.Close(ctx)

	var rows []model.SeatTotals
	if err := cursor.All(ctx, &rows); err != nil {
		return model.SeatTotals{}, fmt.Errorf("failed to decode seat totals: %w", err)
	}
	if len(rows) == 0 {
		return model.SeatTotals{}, nil
	}
	return rows[0], nil
}

func (r *mongoSlotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

// missReason explains why a conditional write matched nothing: the slot is
// missing, or it exists and the condition failed with conditionErr.
func (r *mongoSlotRepository) missReason(ctx context.Context, objectID primitive.ObjectID, id string, conditionErr error) error {
	exists, err := r.collection.CountDocuments(ctx, bson.M{"_id": objectID}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("failed to check slot existence: %w", mongotx.Classify(err))
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
	}
	if conditionErr == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", conditionErr, id)
}
