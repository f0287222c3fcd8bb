package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeSettlementTransfer  = "settlement:transfer"
	TypeSettlementReconcile = "settlement:reconcile"
	TypeSettlementSweep     = "settlement:sweep"

	queueName = "settlement"
)

type transferPayload struct {
	BookingID string `json:"bookingId"`
}

// TaskQueue enqueues settlement work on Redis through asynq.
type TaskQueue struct {
	client *asynq.Client
}

func NewTaskQueue(opt asynq.RedisConnOpt) *TaskQueue {
	return &TaskQueue{client: asynq.NewClient(opt)}
}

// EnqueueTransfer queues the payout of one booking. The task id is derived from
// the booking so a booking is never queued twice while its task is pending.
func (q *TaskQueue) EnqueueTransfer(ctx context.Context, bookingID string) error {
	task, err := newTransferTask(bookingID)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.TaskID("transfer:"+bookingID),
		asynq.MaxRetry(8),
		asynq.Timeout(time.Minute),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue transfer for booking %s: %w", bookingID, err)
	}
	return nil
}

// EnqueuePeriodic queues a payload-less maintenance task. Unique keeps several
// instances firing the same schedule from running it more than once per window.
func (q *TaskQueue) EnqueuePeriodic(ctx context.Context, taskType string, window time.Duration) error {
	_, err := q.client.EnqueueContext(ctx, asynq.NewTask(taskType, nil),
		asynq.Queue(queueName),
		asynq.Unique(window),
		asynq.MaxRetry(0),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

func (q *TaskQueue) Close() error {
	return q.client.Close()
}

func newTransferTask(bookingID string) (*asynq.Task, error) {
	payload, err := json.Marshal(transferPayload{BookingID: bookingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSettlementTransfer, payload), nil
}
