package repository

import (
	"context"
	"errors"
	"fmt"
	"time"
	vaccineserrors "vaxslot/internal/vaccines/errors"
	"vaxslot/pkg/config"
	mongotx "vaxslot/pkg/db/mongo"
	"vaxslot/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Vaccines"
)

type VaccineRepository interface {
	Create(ctx context.Context, v *model.Vaccine) error
	FindByID(ctx context.Context, id string) (*model.Vaccine, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.Vaccine, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Vaccine, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, id string, v *model.Vaccine) error
	Delete(ctx context.Context, id string) error
	// AdjustDoses adds delta to dosesAvailable, refusing to go below zero.
	AdjustDoses(ctx context.Context, id string, delta int) error
	SumDoses(ctx context.Context) (int64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoVaccineRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoVaccineRepository(cfg *config.Config) VaccineRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoVaccineRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoVaccineRepository) Create(ctx context.Context, v *model.Vaccine) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	v.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, v)
	if err != nil {
		return fmt.Errorf("failed to create vaccine: %w", mongotx.Classify(err))
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		v.ID = oid.Hex()
	}
	return nil
}

func (r *mongoVaccineRepository) FindByID(ctx context.Context, id string) (*model.Vaccine, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", vaccineserrors.ErrInvalidID, id)
	}

	var v model.Vaccine
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&v)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", vaccineserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find vaccine: %w", mongotx.Classify(err))
	}

	return &v, nil
}

func (r *mongoVaccineRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Vaccine, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			objectIDs = append(objectIDs, oid)
		}
	}
	if len(objectIDs) == 0 {
		return []*model.Vaccine{}, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": objectIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to query vaccines: %w", mongotx.Classify(err))
	}
	defer cursor.Close(ctx)

	vaccines := []*model.Vaccine{}
	if err = cursor.All(ctx, &vaccines); err != nil {
		return nil, fmt.Errorf("failed to decode vaccines: %w", err)
	}
	return vaccines, nil
}

func (r *mongoVaccineRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Vaccine, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query vaccines: %w", mongotx.Classify(err))
	}
	defer cursor.Close(ctx)

	vaccines := []*model.Vaccine{}
	if err = cursor.All(ctx, &vaccines); err != nil {
		return nil, fmt.Errorf("failed to decode vaccines: %w", err)
	}
	return vaccines, nil
}

func (r *mongoVaccineRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count vaccines: %w", mongotx.Classify(err))
	}
	return count, nil
}

func (r *mongoVaccineRepository) Update(ctx context.Context, id string, v *model.Vaccine) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", vaccineserrors.ErrInvalidID, id)
	}

	update := bson.M{
		"$set": bson.M{
			"name":            v.Name,
			"manufacturer":    v.Manufacturer,
			"description":     v.Description,
			"doses_available": v.DosesAvailable,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to update vaccine: %w", mongotx.Classify(err))
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", vaccineserrors.ErrNotFound, id)
	}
	return nil
}

func (r *mongoVaccineRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", vaccineserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete vaccine: %w", mongotx.Classify(err))
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", vaccineserrors.ErrNotFound, id)
	}
	return nil
}

func (r *mongoVaccineRepository) AdjustDoses(ctx context.Context, id string, delta int) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", vaccineserrors.ErrInvalidID, id)
	}

	filter := bson.M{"_id": objectID}
	if delta < 0 {
		filter["doses_available"] = bson.M{"$gte": -delta}
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"doses_available": delta}})
	if err != nil {
		return fmt.Errorf("failed to adjust vaccine doses: %w", mongotx.Classify(err))
	}
	if result.MatchedCount > 0 {
		return nil
	}

	exists, err := r.collection.CountDocuments(ctx, bson.M{"_id": objectID}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("failed to check vaccine existence: %w", mongotx.Classify(err))
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", vaccineserrors.ErrNotFound, id)
	}
	return fmt.Errorf("%w: vaccine %s needs %d", vaccineserrors.ErrInsufficientDoses, id, -delta)
}

func (r *mongoVaccineRepository) SumDoses(ctx context.Context) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$doses_available"}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum vaccine doses: %w", mongotx.Classify(err))
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("failed to decode dose total: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

func (r *mongoVaccineRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
