package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Enqueuer is the part of TaskQueue the scheduler needs.
type Enqueuer interface {
	EnqueuePeriodic(ctx context.Context, taskType string, window time.Duration) error
}

type ScheduleConfig struct {
	ReconcileSpec string
	SweepSpec     string
}

// Scheduler fires the periodic settlement tasks. Every instance may run one;
// the queue deduplicates what they enqueue.
type Scheduler struct {
	cron   *cron.Cron
	queue  Enqueuer
	logger *zap.Logger
}

func NewScheduler(queue Enqueuer, cfg ScheduleConfig, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		queue:  queue,
		logger: logger.Named("scheduler"),
	}
	jobs := []struct {
		spec     string
		taskType string
	}{
		{cfg.ReconcileSpec, TypeSettlementReconcile},
		{cfg.SweepSpec, TypeSettlementSweep},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, s.enqueue(j.taskType, window(j.spec))); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) enqueue(taskType string, window time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.queue.EnqueuePeriodic(ctx, taskType, window); err != nil {
			s.logger.Warn("periodic task not queued", zap.String("task", taskType), zap.Error(err))
		}
	}
}

// Entries is the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// window is the gap between two firings of spec, used as the uniqueness window.
func window(spec string) time.Duration {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Minute
	}
	first := schedule.Next(time.Now())
	gap := schedule.Next(first).Sub(first)
	if gap <= time.Second {
		return time.Second
	}
	return gap - time.Second
}
