package couponRepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bidmarket/database"
	"bidmarket/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const opTimeout = 5 * time.Second

// MongoCouponRepo implements CouponRepository using MongoDB.
type MongoCouponRepo struct {
	coll *mongo.Collection
}

func NewMongoCouponRepo() CouponRepository {
	repo := &MongoCouponRepo{coll: database.Collection("coupons")}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create coupon indexes: %v\n", err)
	}
	return repo
}

func (r *MongoCouponRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *MongoCouponRepo) Create(ctx context.Context, coupon *models.Coupon) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	coupon.Code = strings.ToUpper(coupon.Code)
	if coupon.UsedCountByUser == nil {
		coupon.UsedCountByUser = []models.UserUsage{}
	}
	if _, err := r.coll.InsertOne(ctx, coupon); err != nil {
		return fmt.Errorf("failed to insert coupon: %w", err)
	}
	return nil
}

func (r *MongoCouponRepo) findOne(ctx context.Context, filter bson.M) (*models.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var coupon models.Coupon
	if err := r.coll.FindOne(ctx, filter).Decode(&coupon); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &coupon, nil
}

func (r *MongoCouponRepo) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return r.findOne(ctx, bson.M{"code": strings.ToUpper(code), "isActive": true})
}

func (r *MongoCouponRepo) GetByID(ctx context.Context, id string) (*models.Coupon, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

func (r *MongoCouponRepo) IncrementUsage(ctx context.Context, coupon *models.Coupon, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"id": coupon.ID, "usedCount": coupon.UsedCount}
	var update bson.M
	if prev := coupon.UsageFor(userID); prev > 0 {
		filter["usedCountByUser"] = bson.M{"$elemMatch": bson.M{"userId": userID, "count": prev}}
		update = bson.M{"$inc": bson.M{"usedCount": 1, "usedCountByUser.$.count": 1}}
	} else {
		filter["usedCountByUser.userId"] = bson.M{"$ne": userID}
		update = bson.M{
			"$inc":  bson.M{"usedCount": 1},
			"$push": bson.M{"usedCountByUser": models.UserUsage{UserID: userID, Count: 1}},
		}
	}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrStaleUsage
	}
	return nil
}
