package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bidmarket/config"
	"bidmarket/utils"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoClient is the global MongoDB client instance.
var MongoClient *mongo.Client

// InitDB initializes the MongoDB connection.
func InitDB() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(config.AppConfig.DatabaseURL)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		log.Fatalf("failed to connect to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Fatalf("failed to ping MongoDB: %v", err)
	}
	MongoClient = client
	log.Println("Connected to MongoDB successfully!")
}

// Collection returns a collection of the configured database.
func Collection(name string) *mongo.Collection {
	return MongoClient.Database(config.AppConfig.DatabaseName).Collection(name)
}

// TxRunner runs fn inside one all-or-nothing transaction. Repository calls
// made with the ctx handed to fn join the transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// InTransaction reports whether ctx already belongs to a transaction started by a TxRunner.
func InTransaction(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

// MarkTransaction tags ctx as running inside a transaction.
func MarkTransaction(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, true)
}

// MongoTxRunner runs transactions on a MongoDB replica set.
type MongoTxRunner struct {
	Client *mongo.Client
}

func NewMongoTxRunner(client *mongo.Client) *MongoTxRunner {
	return &MongoTxRunner{Client: client}
}

// WithTransaction runs fn through the driver's session transaction, which retries
// fn on TransientTransactionError and retries the commit on
// UnknownTransactionCommitResult. fn may therefore run more than once and must
// reset whatever it captures. A write conflict that outlives the retries is
// reported as CONFLICT.
func (r *MongoTxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested calls join the outer transaction.
	if InTransaction(ctx) {
		return fn(ctx)
	}

	sess, err := r.Client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(MarkTransaction(sc))
	})
	return txError(err)
}

// writeConflictCode is the server code of a WriteConflict.
const writeConflictCode = 112

// txError maps a transaction that lost a write conflict to a CONFLICT error.
// Other transient failures keep their kind so background callers retry them.
func txError(err error) error {
	if err == nil || !isWriteConflict(err) {
		return err
	}
	return &utils.AppError{
		Kind:    utils.KindConflict,
		Code:    "WRITE_CONFLICT",
		Message: "the record was changed by a concurrent request, try again",
		Err:     err,
	}
}

func isWriteConflict(err error) bool {
	var server mongo.ServerError
	return errors.As(err, &server) && server.HasErrorCode(writeConflictCode)
}
