package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bidmarket/utils"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func writeConflict() error {
	return mongo.CommandError{
		Code:    112,
		Name:    "WriteConflict",
		Message: "WriteConflict error: this operation conflicted with another operation",
		Labels:  []string{"TransientTransactionError"},
	}
}

func TestTxErrorMapsWriteConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bare", writeConflict()},
		{"wrapped by a repository", fmt.Errorf("failed to update booking b1: %w", writeConflict())},
		{"wrapped by a service", utils.Internal(fmt.Errorf("update: %w", writeConflict()), "failed to update booking b1")},
		{"write exception", mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 112, Message: "WriteConflict"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := txError(tt.err)
			assert.Equal(t, utils.KindConflict, utils.KindOf(err))
			assert.Equal(t, "WRITE_CONFLICT", utils.CodeOf(err))
			var server mongo.ServerError
			assert.True(t, errors.As(err, &server))
		})
	}
}

func TestTxErrorKeepsOtherErrors(t *testing.T) {
	assert.NoError(t, txError(nil))

	notFound := utils.NotFound("booking b1 not found")
	assert.Same(t, notFound, txError(notFound))

	network := mongo.CommandError{Code: 6, Name: "HostUnreachable", Labels: []string{"TransientTransactionError"}}
	err := txError(utils.Internal(network, "failed to load booking"))
	assert.Equal(t, utils.KindInternal, utils.KindOf(err))

	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "duplicate key"}}}
	assert.Equal(t, utils.KindInternal, utils.KindOf(txError(utils.Internal(dup, "insert"))))
}

func TestNestedTransactionJoinsOuter(t *testing.T) {
	r := NewMongoTxRunner(nil)
	ctx := MarkTransaction(context.Background())
	called := false
	err := r.WithTransaction(ctx, func(inner context.Context) error {
		called = true
		assert.True(t, InTransaction(inner))
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, called)
}
