package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bidmarket/database"
	bidRepo "bidmarket/database/repository/bid"
	bookingRepo "bidmarket/database/repository/booking"
	paymentRepo "bidmarket/database/repository/payment"
	settlementRepo "bidmarket/database/repository/settlement"
	userRepo "bidmarket/database/repository/user"
	"bidmarket/models"
	"bidmarket/services/earnings"
	"bidmarket/services/notification"
	"bidmarket/services/payment"
	"bidmarket/utils"

	"go.uber.org/zap"
)

// Checkout metadata keys. The webhook rebuilds the acceptance from them.
const (
	metaBookingID      = "bookingId"
	metaBidID          = "bidId"
	metaCustomerID     = "customerId"
	metaProviderID     = "providerId"
	metaReceivers      = "receivers"
	metaIsBidChange    = "isBidChange"
	metaTotalAmount    = "totalAmount"
	metaDiscount       = "discount"
	metaFinalAmount    = "finalAmount"
	metaRevenuePercent = "revenuePercent"
)

var (
	// errSkip marks webhook input that can never be processed; it is acknowledged and dropped.
	errSkip = errors.New("unprocessable settlement event")
	// errDuplicate aborts a transaction whose payment intent was already recorded.
	errDuplicate = errors.New("payment intent already recorded")
)

// TransferScheduler queues a provider payout for a booking.
type TransferScheduler interface {
	EnqueueTransfer(ctx context.Context, bookingID string) error
}

// InvoiceIssuer renders and stores an invoice, returning its URL.
type InvoiceIssuer interface {
	Issue(ctx context.Context, inv models.Invoice) (string, error)
}

type Config struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// Deps groups the collaborators of an Orchestrator. Invoices and Transfers are optional.
type Deps struct {
	Tx        database.TxRunner
	Bookings  bookingRepo.BookingRepository
	Bids      bidRepo.BidRepository
	Payments  paymentRepo.PaymentRepository
	Intents   settlementRepo.SettlementRepository
	Users     userRepo.UserRepository
	Ledger    *earnings.Ledger
	Gateway   payment.Gateway
	Notifier  notification.Notifier
	Invoices  InvoiceIssuer
	Transfers TransferScheduler
	Logger    *zap.Logger
}

// Orchestrator drives money movement for bookings: cash completion, online
// checkout and its webhook, provider payouts and refunds.
type Orchestrator struct {
	tx        database.TxRunner
	bookings  bookingRepo.BookingRepository
	bids      bidRepo.BidRepository
	payments  paymentRepo.PaymentRepository
	intents   settlementRepo.SettlementRepository
	users     userRepo.UserRepository
	ledger    *earnings.Ledger
	gateway   payment.Gateway
	notifier  notification.Notifier
	invoices  InvoiceIssuer
	transfers TransferScheduler
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

func New(d Deps, cfg Config) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Orchestrator{
		tx:        d.Tx,
		bookings:  d.Bookings,
		bids:      d.Bids,
		payments:  d.Payments,
		intents:   d.Intents,
		users:     d.Users,
		ledger:    d.Ledger,
		gateway:   d.Gateway,
		notifier:  d.Notifier,
		invoices:  d.Invoices,
		transfers: d.Transfers,
		cfg:       cfg,
		logger:    logger.Named("settlement"),
		now:       time.Now,
	}
}

// SetTransferScheduler wires the payout queue after construction; the queue's
// worker itself needs the orchestrator.
func (o *Orchestrator) SetTransferScheduler(s TransferScheduler) {
	o.transfers = s
}

// ConfirmBid makes bid the accepted bid of booking. Every other open bid is
// rejected and displacedID, when set, goes back to PENDING. The caller persists
// booking. The rejected bids are returned so their providers can be told.
func (o *Orchestrator) ConfirmBid(ctx context.Context, booking *models.Booking, bid *models.Bid, displacedID string) ([]models.Bid, error) {
	at := o.now()
	siblings, err := o.bids.ListByBooking(ctx, booking.ID)
	if err != nil {
		return nil, utils.Internal(err, "failed to load bids of booking %s", booking.ID)
	}
	var rejected []models.Bid
	for _, s := range siblings {
		if s.ID != bid.ID && s.ID != displacedID && s.Status.IsOpen() {
			rejected = append(rejected, s)
		}
	}

	open := []models.BidStatus{models.BidPending, models.BidAccepted}
	if _, err := o.bids.SetStatusForBooking(ctx, booking.ID, bid.ID, open, models.BidRejected, at); err != nil {
		return nil, utils.Internal(err, "failed to reject sibling bids")
	}

	if displacedID != "" && displacedID != bid.ID {
		old, err := o.bids.GetByID(ctx, displacedID)
		switch {
		case errors.Is(err, bidRepo.ErrNotFound):
		case err != nil:
			return nil, utils.Internal(err, "failed to load displaced bid %s", displacedID)
		default:
			old.SetStatus(models.BidPending, at)
			if err := o.bids.Update(ctx, old); err != nil {
				return nil, utils.Internal(err, "failed to reopen displaced bid %s", displacedID)
			}
		}
	}

	bid.CancelReason = ""
	bid.SetStatus(models.BidAccepted, at)
	if err := o.bids.Update(ctx, bid); err != nil {
		return nil, utils.Internal(err, "failed to accept bid %s", bid.ID)
	}
	booking.AssignBid(bid.ID, bid.ProviderID)
	booking.UpdatedAt = at
	return rejected, nil
}

// NotifyAcceptance tells the winning, displaced and rejected providers.
func (o *Orchestrator) NotifyAcceptance(ctx context.Context, booking *models.Booking, bid *models.Bid, displacedProviderID string, rejected []models.Bid) {
	ref := models.Reference{Kind: models.RefBooking, ID: booking.ID}
	o.notify(ctx, models.Notification{
		ReceiverID: bid.ProviderID,
		Title:      "Bid accepted",
		Body:       fmt.Sprintf("Your bid of %.2f was accepted.", bid.Rate),
		Type:       models.NotifyBidAccepted,
		Reference:  ref,
		Data:       map[string]string{"bidId": bid.ID},
	})
	if displacedProviderID != "" && displacedProviderID != bid.ProviderID {
		o.notify(ctx, models.Notification{
			ReceiverID: displacedProviderID,
			Title:      "Booking reassigned",
			Body:       "The customer switched to another provider.",
			Type:       models.NotifyBidDisplaced,
			Reference:  ref,
		})
	}
	for _, r := range rejected {
		o.notify(ctx, models.Notification{
			ReceiverID: r.ProviderID,
			Title:      "Bid not selected",
			Body:       "The customer accepted another bid.",
			Type:       models.NotifyBidRejected,
			Reference:  ref,
			Data:       map[string]string{"bidId": r.ID},
		})
	}
}

func (o *Orchestrator) notify(ctx context.Context, n models.Notification) {
	notification.Deliver(ctx, o.notifier, o.logger, n)
}

func (o *Orchestrator) loadBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := o.bookings.GetByID(ctx, id)
	if errors.Is(err, bookingRepo.ErrNotFound) {
		return nil, utils.NotFound("booking %s not found", id)
	}
	if err != nil {
		return nil, utils.Internal(err, "failed to load booking %s", id)
	}
	return b, nil
}
