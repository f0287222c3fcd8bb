package settlementRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bidmarket/database"
	"bidmarket/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoSettlementRepo struct {
	coll *mongo.Collection
}

func NewMongoSettlementRepo() SettlementRepository {
	repo := &MongoSettlementRepo{coll: database.Collection("settlement_intents")}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create settlement indexes: %v\n", err)
	}
	return repo
}

func (r *MongoSettlementRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "checkoutSessionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "lastCheckedAt", Value: 1}}},
		{Keys: bson.D{{Key: "bookingId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *MongoSettlementRepo) Create(ctx context.Context, intent *models.SettlementIntent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, intent); err != nil {
		return fmt.Errorf("failed to insert settlement intent: %w", err)
	}
	return nil
}

func (r *MongoSettlementRepo) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*models.SettlementIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var intent models.SettlementIntent
	if err := r.coll.FindOne(ctx, filter, opts...).Decode(&intent); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get settlement intent: %w", err)
	}
	return &intent, nil
}

func (r *MongoSettlementRepo) GetByCheckoutSession(ctx context.Context, sessionID string) (*models.SettlementIntent, error) {
	return r.findOne(ctx, bson.M{"checkoutSessionId": sessionID})
}

func (r *MongoSettlementRepo) GetOpenByBooking(ctx context.Context, bookingID string) (*models.SettlementIntent, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.findOne(ctx, bson.M{"bookingId": bookingID, "status": models.SettlementOpen}, opts)
}

func (r *MongoSettlementRepo) Update(ctx context.Context, intent *models.SettlementIntent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	intent.UpdatedAt = time.Now()
	res, err := r.coll.ReplaceOne(ctx, bson.M{"id": intent.ID}, intent)
	if err != nil {
		return fmt.Errorf("failed to update settlement intent %s: %w", intent.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoSettlementRepo) ListStale(ctx context.Context, before time.Time, limit int64) ([]models.SettlementIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"status":    models.SettlementOpen,
		"createdAt": bson.M{"$lt": before},
		"$or": bson.A{
			bson.M{"lastCheckedAt": bson.M{"$exists": false}},
			bson.M{"lastCheckedAt": bson.M{"$lt": before}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(limit)

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale intents: %w", err)
	}
	defer cursor.Close(ctx)

	var intents []models.SettlementIntent
	if err := cursor.All(ctx, &intents); err != nil {
		return nil, fmt.Errorf("failed to decode intents: %w", err)
	}
	return intents, nil
}
