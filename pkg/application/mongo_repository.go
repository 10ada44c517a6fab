package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	applicationsCollection    = "applications"
	applicationIDIndexName    = "application_id_unique"
	activeNationalIDMongoName = "active_national_id_unique"
)

// MongoApplicationRepository implements ApplicationRepository on a MongoDB collection
type MongoApplicationRepository struct {
	collection *mongo.Collection
}

// NewMongoApplicationRepository creates a repository backed by the applications collection
func NewMongoApplicationRepository(db *mongo.Database) *MongoApplicationRepository {
	return &MongoApplicationRepository{collection: db.Collection(applicationsCollection)}
}

// EnsureIndexes creates the unique indexes Create and Update rely on.
// The partial index needs MongoDB 6.0+ for $in in partialFilterExpression.
func (r *MongoApplicationRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "applicationId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(applicationIDIndexName),
		},
		{
			Keys: bson.D{{Key: "nationalId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName(activeNationalIDMongoName).
				SetPartialFilterExpression(bson.M{"status": bson.M{"$in": ActiveStatuses}}),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "submittedAt", Value: -1}}},
	}

	names, err := r.collection.Indexes().CreateMany(ctx, models)
	if err != nil {
		return fmt.Errorf("failed to create application indexes: %w", err)
	}
	slog.Info("Application indexes ensured", "indexes", names)
	return nil
}

func (r *MongoApplicationRepository) Create(ctx context.Context, app *Application) error {
	if _, err := r.collection.InsertOne(ctx, withNonNilSlices(app)); err != nil {
		return r.mapWriteError(ctx, app, err)
	}
	return nil
}

func (r *MongoApplicationRepository) Update(ctx context.Context, app *Application) error {
	result, err := r.collection.ReplaceOne(ctx, bson.M{"applicationId": app.ApplicationID}, withNonNilSlices(app))
	if err != nil {
		return r.mapWriteError(ctx, app, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoApplicationRepository) FindByApplicationID(ctx context.Context, applicationID string) (*Application, error) {
	return r.findOne(ctx, bson.M{"applicationId": applicationID}, nil)
}

func (r *MongoApplicationRepository) FindActiveByNationalID(ctx context.Context, nationalID string) (*Application, error) {
	return r.findOne(ctx, bson.M{
		"nationalId": nationalID,
		"status":     bson.M{"$in": ActiveStatuses},
	}, newestFirst())
}

func (r *MongoApplicationRepository) FindLatestByNationalID(ctx context.Context, nationalID string) (*Application, error) {
	return r.findOne(ctx, bson.M{"nationalId": nationalID}, newestFirst())
}

func (r *MongoApplicationRepository) FindByNationalID(ctx context.Context, nationalID string) ([]Application, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"nationalId": nationalID}, options.Find().SetSort(newestFirst()))
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}

	apps := []Application{}
	if err := cursor.All(ctx, &apps); err != nil {
		return nil, fmt.Errorf("failed to decode applications: %w", err)
	}
	return apps, nil
}

func (r *MongoApplicationRepository) List(ctx context.Context, filter Filter) ([]Application, int64, error) {
	filter = filter.Normalize()

	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count applications: %w", err)
	}

	opts := options.Find().
		SetSort(newestFirst()).
		SetSkip(int64(filter.Offset())).
		SetLimit(int64(filter.Limit))
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list applications: %w", err)
	}

	apps := []Application{}
	if err := cursor.All(ctx, &apps); err != nil {
		return nil, 0, fmt.Errorf("failed to decode applications: %w", err)
	}
	return apps, total, nil
}

func (r *MongoApplicationRepository) findOne(ctx context.Context, query bson.M, sort bson.D) (*Application, error) {
	opts := options.FindOne()
	if sort != nil {
		opts.SetSort(sort)
	}

	var app Application
	if err := r.collection.FindOne(ctx, query, opts).Decode(&app); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	return &app, nil
}

func (r *MongoApplicationRepository) mapWriteError(ctx context.Context, app *Application, err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to write application: %w", err)
	}
	if strings.Contains(err.Error(), activeNationalIDMongoName) {
		dup := &DuplicateApplicationError{NationalID: app.NationalID}
		if existing, findErr := r.FindActiveByNationalID(ctx, app.NationalID); findErr == nil {
			dup.ExistingApplicationID = existing.ApplicationID
		}
		return dup
	}
	return errDuplicateApplicationID
}

func newestFirst() bson.D {
	return bson.D{{Key: "submittedAt", Value: -1}, {Key: "applicationId", Value: -1}}
}

func withNonNilSlices(app *Application) *Application {
	out := *app
	out.StatusHistory = nonNilHistory(app.StatusHistory)
	out.Purchases = nonNilPurchases(app.Purchases)
	return &out
}
