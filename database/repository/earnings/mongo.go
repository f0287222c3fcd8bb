package earningsRepo

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

const opTimeout = 5 * time.Second

// MongoEarningsRepo implements EarningsRepository using MongoDB.
type MongoEarningsRepo struct {
	coll *mongo.Collection
}

func NewMongoEarningsRepo() EarningsRepository {
	repo := &MongoEarningsRepo{coll: database.Collection("earnings")}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create earnings indexes: %v\n", err)
	}
	return repo
}

func (r *MongoEarningsRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "providerId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *MongoEarningsRepo) Get(ctx context.Context, providerID string) (*models.EarningsLedger, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var ledger models.EarningsLedger
	if err := r.coll.FindOne(ctx, bson.M{"providerId": providerID}).Decode(&ledger); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ledger for %s: %w", providerID, err)
	}
	return &ledger, nil
}

func (r *MongoEarningsRepo) Apply(ctx context.Context, providerID, currency string, delta models.LedgerDelta) (*models.EarningsLedger, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"providerId": providerID}
	guards := map[string]float64{
		"totalEarnings":     delta.TotalEarnings,
		"amountTransferred": delta.AmountTransferred,
		"pendingTransfer":   delta.PendingTransfer,
		"reservedTransfer":  delta.ReservedTransfer,
		"adminDue":          delta.AdminDue,
	}
	for field, d := range guards {
		if d < 0 {
			filter[field] = bson.M{"$gte": -d}
		}
	}

	update := bson.M{
		"$inc": bson.M{
			"totalEarnings":     delta.TotalEarnings,
			"amountTransferred": delta.AmountTransferred,
			"pendingTransfer":   delta.PendingTransfer,
			"reservedTransfer":  delta.ReservedTransfer,
			"adminDue":          delta.AdminDue,
		},
		"$set":         bson.M{"updatedAt": time.Now()},
		"$setOnInsert": bson.M{"currency": currency},
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetUpsert(!delta.HasDecrement())

	var ledger models.EarningsLedger
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&ledger); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInsufficientBalance
		}
		return nil, fmt.Errorf("failed to update ledger for %s: %w", providerID, err)
	}
	return &ledger, nil
}
