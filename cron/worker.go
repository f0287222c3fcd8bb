package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bidmarket/services/settlement"
	"bidmarket/utils"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Settler is the settlement work the worker runs.
type Settler interface {
	TransferToProvider(ctx context.Context, bookingID string) error
	Reconcile(ctx context.Context, olderThan time.Duration) (settlement.ReconcileReport, error)
	SweepTransfers(ctx context.Context) (int, error)
}

type WorkerConfig struct {
	Concurrency int
	StaleAfter  time.Duration
}

// Worker consumes settlement tasks.
type Worker struct {
	srv     *asynq.Server
	mux     *asynq.ServeMux
	settler Settler
	cfg     WorkerConfig
	logger  *zap.Logger
}

func NewWorker(opt asynq.RedisConnOpt, settler Settler, cfg WorkerConfig, logger *zap.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		srv: asynq.NewServer(opt, asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      map[string]int{queueName: 1},
			RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
				return time.Duration(n*n+1) * 30 * time.Second
			},
		}),
		mux:     asynq.NewServeMux(),
		settler: settler,
		cfg:     cfg,
		logger:  logger.Named("worker"),
	}
	w.mux.HandleFunc(TypeSettlementTransfer, w.handleTransfer)
	w.mux.HandleFunc(TypeSettlementReconcile, w.handleReconcile)
	w.mux.HandleFunc(TypeSettlementSweep, w.handleSweep)
	return w
}

// Start runs the worker in the background, retrying startup with backoff.
func (w *Worker) Start() {
	go func() {
		const maxAttempts = 5
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			err := w.srv.Start(w.mux)
			if err == nil {
				w.logger.Info("settlement worker started")
				return
			}
			w.logger.Error("settlement worker failed to start",
				zap.Int("attempt", attempt), zap.Int("maxAttempts", maxAttempts), zap.Error(err))
			time.Sleep(time.Duration(attempt*2) * time.Second)
		}
		w.logger.Error("settlement worker gave up; payouts rely on the sweep")
	}()
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

func (w *Worker) handleTransfer(ctx context.Context, task *asynq.Task) error {
	var p transferPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil || p.BookingID == "" {
		w.logger.Error("invalid transfer task", zap.ByteString("payload", task.Payload()), zap.Error(err))
		return fmt.Errorf("invalid transfer payload: %w", asynq.SkipRetry)
	}

	err := w.settler.TransferToProvider(ctx, p.BookingID)
	if err == nil {
		return nil
	}
	switch utils.KindOf(err) {
	case utils.KindValidation, utils.KindNotFound, utils.KindForbidden, utils.KindInvalidTransition, utils.KindConflict:
		w.logger.Warn("transfer will not be retried",
			zap.String("bookingId", p.BookingID), zap.String("code", utils.CodeOf(err)), zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	w.logger.Warn("transfer failed, retrying", zap.String("bookingId", p.BookingID), zap.Error(err))
	return err
}

func (w *Worker) handleReconcile(ctx context.Context, _ *asynq.Task) error {
	report, err := w.settler.Reconcile(ctx, w.cfg.StaleAfter)
	if err != nil {
		return err
	}
	if report.Checked > 0 {
		w.logger.Info("checkouts reconciled",
			zap.Int("checked", report.Checked), zap.Int("completed", report.Completed),
			zap.Int("expired", report.Expired), zap.Int("failed", report.Failed))
	}
	return nil
}

func (w *Worker) handleSweep(ctx context.Context, _ *asynq.Task) error {
	n, err := w.settler.SweepTransfers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Info("pending payouts swept", zap.Int("bookings", n))
	}
	return nil
}
