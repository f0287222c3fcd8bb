package bidRepo

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

// MongoBidRepo implements BidRepository using MongoDB.
type MongoBidRepo struct {
	coll *mongo.Collection
}

func NewMongoBidRepo() BidRepository {
	repo := &MongoBidRepo{coll: database.Collection("bids")}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create bid indexes: %v\n", err)
	}
	return repo
}

// ensureIndexes enforces one live bid per (booking, provider).
func (r *MongoBidRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys: bson.D{{Key: "bookingId", Value: 1}, {Key: "providerId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"isDeleted": false}),
		},
		{Keys: bson.D{{Key: "providerId", Value: 1}, {Key: "status", Value: 1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *MongoBidRepo) Create(ctx context.Context, bid *models.Bid) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, bid); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

func (r *MongoBidRepo) GetByID(ctx context.Context, id string) (*models.Bid, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var bid models.Bid
	err := r.coll.FindOne(ctx, bson.M{"id": id, "isDeleted": false}).Decode(&bid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bid %s: %w", id, err)
	}
	return &bid, nil
}

func (r *MongoBidRepo) Update(ctx context.Context, bid *models.Bid) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.ReplaceOne(ctx, bson.M{"id": bid.ID}, bid)
	if err != nil {
		return fmt.Errorf("failed to update bid %s: %w", bid.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoBidRepo) ListByBooking(ctx context.Context, bookingID string) ([]models.Bid, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"bookingId": bookingID, "isDeleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids for booking %s: %w", bookingID, err)
	}
	defer cursor.Close(ctx)

	var bids []models.Bid
	if err := cursor.All(ctx, &bids); err != nil {
		return nil, fmt.Errorf("failed to decode bids: %w", err)
	}
	return bids, nil
}

func (r *MongoBidRepo) FindByBookingAndProvider(ctx context.Context, bookingID, providerID string) (*models.Bid, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var bid models.Bid
	filter := bson.M{"bookingId": bookingID, "providerId": providerID, "isDeleted": false}
	if err := r.coll.FindOne(ctx, filter).Decode(&bid); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find bid: %w", err)
	}
	return &bid, nil
}

func (r *MongoBidRepo) SetStatusForBooking(
	ctx context.Context,
	bookingID, excludeID string,
	from []models.BidStatus,
	to models.BidStatus,
	at time.Time,
) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{
		"bookingId": bookingID,
		"isDeleted": false,
		"status":    bson.M{"$in": from},
	}
	if excludeID != "" {
		filter["id"] = bson.M{"$ne": excludeID}
	}
	update := bson.M{
		"$set": bson.M{
			"status":                           to,
			"isAccepted":                       to.IsAcceptedStage(),
			"statusChangeTimes." + string(to): at,
			"updatedAt":                        at,
		},
	}
	res, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to update sibling bids of booking %s: %w", bookingID, err)
	}
	return res.ModifiedCount, nil
}
