package settlement

import (
	"context"
	"errors"
	"time"

	"bidmarket/models"
	"bidmarket/services/payment"
	"bidmarket/utils"

	"go.uber.org/zap"
)

const reconcileBatch = 50

// ReconcileReport counts what one reconciliation pass did.
type ReconcileReport struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Expired   int `json:"expired"`
	Failed    int `json:"failed"`
}

// Reconcile asks the gateway about checkouts that stayed open longer than
// olderThan. Paid sessions whose webhook never arrived are finalized through the
// same path the webhook uses.
func (o *Orchestrator) Reconcile(ctx context.Context, olderThan time.Duration) (ReconcileReport, error) {
	var report ReconcileReport
	stale, err := o.intents.ListStale(ctx, o.now().Add(-olderThan), reconcileBatch)
	if err != nil {
		return report, utils.Internal(err, "failed to list open checkouts")
	}

	for i := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		intent := &stale[i]
		report.Checked++
		intent.Attempts++
		intent.LastCheckedAt = o.now()
		log := o.logger.With(zap.String("bookingId", intent.BookingID), zap.String("sessionId", intent.CheckoutSessionID))

		sess, err := o.gateway.GetCheckoutSession(ctx, intent.CheckoutSessionID)
		if err != nil {
			intent.LastError = err.Error()
			log.Warn("checkout lookup failed", zap.Error(err))
			o.saveIntent(ctx, intent)
			continue
		}

		switch {
		case sess.Paid():
			err := o.FinalizeCheckout(ctx, sess)
			switch {
			case errors.Is(err, errSkip):
				intent.Status = models.SettlementFailed
				intent.LastError = err.Error()
				report.Failed++
			case err != nil:
				intent.LastError = err.Error()
				log.Warn("finalizing paid checkout failed", zap.Error(err))
			default:
				intent.Status = models.SettlementCompleted
				intent.PaymentIntentID = sess.PaymentIntentID
				intent.LastError = ""
				report.Completed++
			}
		case sess.Status == payment.SessionExpired:
			intent.Status = models.SettlementExpired
			report.Expired++
		}
		o.saveIntent(ctx, intent)
	}

	if report.Checked > 0 {
		o.logger.Info("checkout reconciliation finished",
			zap.Int("checked", report.Checked), zap.Int("completed", report.Completed),
			zap.Int("expired", report.Expired), zap.Int("failed", report.Failed))
	}
	return report, nil
}

func (o *Orchestrator) saveIntent(ctx context.Context, intent *models.SettlementIntent) {
	intent.UpdatedAt = o.now()
	if err := o.intents.Update(ctx, intent); err != nil {
		o.logger.Warn("settlement intent not updated", zap.String("id", intent.ID), zap.Error(err))
	}
}
