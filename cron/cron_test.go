package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"bidmarket/services/settlement"
	"bidmarket/utils"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSettler struct {
	transferred []string
	transferErr error
	reconciled  time.Duration
	swept       int
}

func (f *fakeSettler) TransferToProvider(_ context.Context, bookingID string) error {
	f.transferred = append(f.transferred, bookingID)
	return f.transferErr
}

func (f *fakeSettler) Reconcile(_ context.Context, olderThan time.Duration) (settlement.ReconcileReport, error) {
	f.reconciled = olderThan
	return settlement.ReconcileReport{Checked: 1, Completed: 1}, nil
}

func (f *fakeSettler) SweepTransfers(context.Context) (int, error) {
	f.swept++
	return 2, nil
}

func newTestWorker(s Settler) *Worker {
	return &Worker{settler: s, cfg: WorkerConfig{StaleAfter: 5 * time.Minute}, logger: zap.NewNop()}
}

func TestHandleTransfer(t *testing.T) {
	s := &fakeSettler{}
	w := newTestWorker(s)
	task, err := newTransferTask("b1")
	require.NoError(t, err)

	require.NoError(t, w.handleTransfer(context.Background(), task))
	assert.Equal(t, []string{"b1"}, s.transferred)
}

func TestHandleTransferRejectsBadPayload(t *testing.T) {
	w := newTestWorker(&fakeSettler{})
	err := w.handleTransfer(context.Background(), asynq.NewTask(TypeSettlementTransfer, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleTransferRetriesOnlyTransientErrors(t *testing.T) {
	task, err := newTransferTask("b1")
	require.NoError(t, err)

	s := &fakeSettler{transferErr: utils.Upstream(errors.New("stripe down"), "transfer failed")}
	err = newTestWorker(s).handleTransfer(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	s = &fakeSettler{transferErr: utils.Conflict("no payout account").WithCode("PAYOUT_ACCOUNT_MISSING")}
	err = newTestWorker(s).handleTransfer(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPeriodicHandlers(t *testing.T) {
	s := &fakeSettler{}
	w := newTestWorker(s)

	require.NoError(t, w.handleReconcile(context.Background(), asynq.NewTask(TypeSettlementReconcile, nil)))
	assert.Equal(t, 5*time.Minute, s.reconciled)

	require.NoError(t, w.handleSweep(context.Background(), asynq.NewTask(TypeSettlementSweep, nil)))
	assert.Equal(t, 1, s.swept)
}

type fakeEnqueuer struct {
	tasks   []string
	windows []time.Duration
}

func (f *fakeEnqueuer) EnqueuePeriodic(_ context.Context, taskType string, window time.Duration) error {
	f.tasks = append(f.tasks, taskType)
	f.windows = append(f.windows, window)
	return nil
}

func TestSchedulerRegistersJobs(t *testing.T) {
	q := &fakeEnqueuer{}
	s, err := NewScheduler(q, ScheduleConfig{ReconcileSpec: "*/10 * * * *", SweepSpec: "0 * * * *"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	s.enqueue(TypeSettlementSweep, time.Minute)()
	assert.Equal(t, []string{TypeSettlementSweep}, q.tasks)
}

func TestSchedulerSkipsEmptySpec(t *testing.T) {
	s, err := NewScheduler(&fakeEnqueuer{}, ScheduleConfig{SweepSpec: "@hourly"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entries())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(&fakeEnqueuer{}, ScheduleConfig{ReconcileSpec: "every now and then"}, nil)
	assert.Error(t, err)
}

func TestUniquenessWindow(t *testing.T) {
	assert.Equal(t, 10*time.Minute-time.Second, window("*/10 * * * *"))
	assert.Equal(t, time.Hour-time.Second, window("0 * * * *"))
	assert.Equal(t, time.Minute, window("nonsense"))
}
