package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"bidmarket/models"

	"go.uber.org/zap"
)

// Notifier delivers one notification. Callers treat delivery as best effort.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n models.Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n models.Notification) error { return f(ctx, n) }

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, models.Notification) error { return nil }

// Fanout sends to every sink and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async delivers in the background so the caller's critical path never waits
// on a push provider or broker. Failures are logged.
type Async struct {
	next    Notifier
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(next Notifier, logger *zap.Logger) *Async {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Async{next: next, logger: logger, timeout: 10 * time.Second}
}

func (a *Async) Notify(ctx context.Context, n models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.next.Notify(sendCtx, n); err != nil {
			a.logger.Warn("notification delivery failed",
				zap.String("receiverId", n.ReceiverID),
				zap.String("type", n.Type),
				zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until queued deliveries finish. Used on shutdown and in tests.
func (a *Async) Wait() {
	a.wg.Wait()
}

// Deliver sends n and logs a failure instead of returning it.
func Deliver(ctx context.Context, notifier Notifier, logger *zap.Logger, n models.Notification) {
	if notifier == nil {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if err := notifier.Notify(ctx, n); err != nil && logger != nil {
		logger.Warn("notification not delivered",
			zap.String("receiverId", n.ReceiverID), zap.String("type", n.Type), zap.Error(err))
	}
}
