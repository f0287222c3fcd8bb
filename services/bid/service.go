package bid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bidmarket/database"
	bidRepo "bidmarket/database/repository/bid"
	bookingRepo "bidmarket/database/repository/booking"
	"bidmarket/models"
	"bidmarket/services/booking"
	"bidmarket/services/notification"
	"bidmarket/services/settlement"
	"bidmarket/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// previousStatus is the only status each provider-driven transition starts from.
var previousStatus = map[models.BidStatus]models.BidStatus{
	models.BidOnTheWay:    models.BidAccepted,
	models.BidWorkStarted: models.BidOnTheWay,
	models.BidCompleted:   models.BidWorkStarted,
}

// bookingStatusFor mirrors a bid transition onto its booking.
var bookingStatusFor = map[models.BidStatus]models.BookingStatus{
	models.BidOnTheWay:    models.BookingOnTheWay,
	models.BidWorkStarted: models.BookingWorkStarted,
}

type Deps struct {
	Tx         database.TxRunner
	Bids       bidRepo.BidRepository
	Bookings   bookingRepo.BookingRepository
	Aggregate  booking.BookingService
	Settlement *settlement.Orchestrator
	Notifier   notification.Notifier
	Logger     *zap.Logger
}

// Service implements BidService.
type Service struct {
	tx         database.TxRunner
	bids       bidRepo.BidRepository
	bookings   bookingRepo.BookingRepository
	aggregate  booking.BookingService
	settlement *settlement.Orchestrator
	notifier   notification.Notifier
	logger     *zap.Logger
	now        func() time.Time
}

var _ BidService = (*Service)(nil)

func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tx:         d.Tx,
		bids:       d.Bids,
		bookings:   d.Bookings,
		aggregate:  d.Aggregate,
		settlement: d.Settlement,
		notifier:   d.Notifier,
		logger:     logger.Named("bid"),
		now:        time.Now,
	}
}

// Create places a provider's bid on an open booking. One bid per provider and booking.
func (s *Service) Create(ctx context.Context, actor models.Actor, input models.BidInput) (*models.Bid, error) {
	if !actor.IsProvider() {
		return nil, utils.Forbidden("only providers can bid")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	var (
		created *models.Bid
		b       *models.Booking
	)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.loadBooking(ctx, input.BookingID)
		if err != nil {
			return err
		}
		if b.CustomerID == actor.ID {
			return utils.Forbidden("you cannot bid on your own booking")
		}
		if b.Status != models.BookingPending && b.Status != models.BookingConfirmed {
			return utils.InvalidTransition("booking %s is %s and takes no bids", b.ID, b.Status)
		}
		_, err = s.bids.FindByBookingAndProvider(ctx, b.ID, actor.ID)
		switch {
		case err == nil:
			return utils.Conflict("you already bid on booking %s", b.ID).WithCode("DUPLICATE_BID")
		case !errors.Is(err, bidRepo.ErrNotFound):
			return utils.Internal(err, "failed to check existing bid")
		}

		now := s.now()
		bid := &models.Bid{
			ID:         uuid.New().String(),
			ProviderID: actor.ID,
			BookingID:  b.ID,
			Rate:       input.Rate,
			CreatedAt:  now,
		}
		bid.SetStatus(models.BidPending, now)
		if err := s.bids.Create(ctx, bid); err != nil {
			if errors.Is(err, bidRepo.ErrDuplicate) {
				return utils.Conflict("you already bid on booking %s", b.ID).WithCode("DUPLICATE_BID")
			}
			return utils.Internal(err, "failed to store bid")
		}
		created = bid
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bid placed",
		zap.String("bidId", created.ID), zap.String("bookingId", b.ID),
		zap.String("providerId", actor.ID), zap.Float64("rate", created.Rate))
	s.notify(ctx, models.Notification{
		ReceiverID: b.CustomerID,
		Title:      "New bid",
		Body:       fmt.Sprintf("A provider offered %.2f for your booking.", created.Rate),
		Type:       models.NotifyNewBid,
		Reference:  models.Reference{Kind: models.RefBooking, ID: b.ID},
		Data:       map[string]string{"bidId": created.ID},
	})
	return created, nil
}

// ChangeStatus moves a bid along its lifecycle. The customer accepts; the
// provider reports ON_THE_WAY, WORK_STARTED and COMPLETED. Completion settles
// the booking through the chosen payment method.
func (s *Service) ChangeStatus(ctx context.Context, actor models.Actor, bidID string, next models.BidStatus) (*StatusResult, error) {
	bid, b, err := s.loadBidAndBooking(ctx, bidID)
	if err != nil {
		return nil, err
	}
	isOwner := actor.IsCustomer() && b.CustomerID == actor.ID
	isBidder := actor.IsProvider() && bid.ProviderID == actor.ID
	if !isOwner && !isBidder {
		return nil, utils.Forbidden("bid %s is not yours to change", bidID)
	}

	switch next {
	case models.BidAccepted:
		if !isOwner {
			return nil, utils.Forbidden("only the customer accepts bids")
		}
		if b.PaymentMethod != models.PaymentCash && b.PaymentMethod != models.PaymentOnline {
			return nil, utils.Validation("choose a payment method when accepting a bid").WithCode("PAYMENT_METHOD_REQUIRED")
		}
		res, err := s.aggregate.AcceptBid(ctx, actor, b.ID, bidID, b.PaymentMethod)
		if res == nil {
			return nil, err
		}
		fresh, loadErr := s.bids.GetByID(ctx, bidID)
		if loadErr != nil {
			fresh = bid
		}
		return &StatusResult{Bid: fresh, Booking: res.Booking, CheckoutURL: res.CheckoutURL}, err

	case models.BidOnTheWay, models.BidWorkStarted, models.BidCompleted:
		if !isBidder {
			return nil, utils.Forbidden("only the provider reports progress")
		}
		return s.advance(ctx, bidID, next)

	case models.BidCancelled:
		return nil, utils.InvalidTransition("withdraw a bid through cancel").WithCode("USE_CANCEL")
	}
	return nil, utils.InvalidTransition("bid %s cannot move to %s", bidID, next)
}

type progress struct {
	bid     *models.Bid
	booking *models.Booking
	code    string
	payment *models.Payment
}

func (s *Service) advance(ctx context.Context, bidID string, next models.BidStatus) (*StatusResult, error) {
	var p progress
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		p = progress{}
		bid, b, err := s.loadBidAndBooking(ctx, bidID)
		if err != nil {
			return err
		}
		if bid.Status != previousStatus[next] {
			return utils.InvalidTransition("bid %s is %s and cannot move to %s", bidID, bid.Status, next)
		}
		if b.AcceptedBidID != bid.ID || b.Status.IsTerminal() {
			return utils.InvalidTransition("bid %s is not the active bid of booking %s", bidID, b.ID)
		}

		now := s.now()
		switch next {
		case models.BidWorkStarted:
			code, hash, err := utils.NewCompletionCode()
			if err != nil {
				return utils.Internal(err, "failed to issue completion code")
			}
			b.CompletionCodeHash = hash
			b.CompletionVerified = false
			p.code = code
		case models.BidCompleted:
			switch b.PaymentMethod {
			case models.PaymentCash:
				if p.payment, err = s.settlement.SettleCash(ctx, b, bid); err != nil {
					return err
				}
			case models.PaymentOnline:
				if err := s.settlement.CompleteOnline(ctx, b, bid); err != nil {
					return err
				}
			default:
				return utils.InvalidTransition("booking %s has no payment method", b.ID)
			}
		}

		bid.SetStatus(next, now)
		if err := s.bids.Update(ctx, bid); err != nil {
			return utils.Internal(err, "failed to update bid %s", bidID)
		}
		if status, ok := bookingStatusFor[next]; ok {
			b.SetStatus(status, now)
			if err := s.bookings.Update(ctx, b); err != nil {
				return utils.Internal(err, "failed to update booking %s", b.ID)
			}
		}
		p.bid, p.booking = bid, b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bid advanced",
		zap.String("bidId", bidID), zap.String("bookingId", p.booking.ID), zap.String("status", string(next)))
	ref := models.Reference{Kind: models.RefBooking, ID: p.booking.ID}
	switch next {
	case models.BidOnTheWay:
		s.notify(ctx, models.Notification{
			ReceiverID: p.booking.CustomerID,
			Title:      "Provider on the way",
			Body:       "Your provider is heading to you.",
			Type:       models.NotifyBidStatus,
			Reference:  ref,
		})
	case models.BidWorkStarted:
		s.notify(ctx, models.Notification{
			ReceiverID: p.booking.CustomerID,
			Title:      "Work started",
			Body:       fmt.Sprintf("Share code %s with your provider when the job is done.", p.code),
			Type:       models.NotifyCompletionCode,
			Reference:  ref,
			Data:       map[string]string{"code": p.code},
		})
	case models.BidCompleted:
		n := models.Notification{
			ReceiverID: p.booking.CustomerID,
			Title:      "Job completed",
			Body:       "Your provider marked the job as done.",
			Type:       models.NotifyBidStatus,
			Reference:  ref,
		}
		if p.payment != nil {
			s.settlement.IssueInvoice(ctx, p.booking, p.payment)
			n.Title = "Cash payment received"
			n.Body = fmt.Sprintf("Your provider confirmed a cash payment of %.2f.", p.payment.Amount)
			n.Type = models.NotifyPaymentReceived
		} else {
			s.settlement.ScheduleTransfer(ctx, p.booking.ID)
		}
		s.notify(ctx, n)
	}
	return &StatusResult{Bid: p.bid, Booking: p.booking}, nil
}

// Cancel withdraws a bid. A pending bid is simply cancelled; backing out of an
// accepted bid reopens the booking.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, bidID, reason string) (*models.Bid, error) {
	bid, err := s.loadBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if !actor.IsProvider() || bid.ProviderID != actor.ID {
		return nil, utils.Forbidden("only the bidding provider can cancel bid %s", bidID)
	}

	switch {
	case bid.Status == models.BidPending:
		err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
			fresh, err := s.loadBid(ctx, bidID)
			if err != nil {
				return err
			}
			if fresh.Status != models.BidPending {
				return utils.InvalidTransition("bid %s is %s", bidID, fresh.Status)
			}
			fresh.CancelReason = reason
			fresh.SetStatus(models.BidCancelled, s.now())
			if err := s.bids.Update(ctx, fresh); err != nil {
				return utils.Internal(err, "failed to cancel bid %s", bidID)
			}
			bid = fresh
			return nil
		})
		if err != nil {
			return nil, err
		}
		return bid, nil

	case bid.Status.IsAcceptedStage() && bid.Status != models.BidCompleted:
		if _, err := s.aggregate.Cancel(ctx, actor, bid.BookingID, reason); err != nil {
			return nil, err
		}
		return s.loadBid(ctx, bidID)
	}
	return nil, utils.InvalidTransition("bid %s is %s and cannot be cancelled", bidID, bid.Status)
}

// Get returns a bid to its provider, the booking's customer or an admin.
func (s *Service) Get(ctx context.Context, actor models.Actor, bidID string) (*models.Bid, error) {
	bid, b, err := s.loadBidAndBooking(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || bid.ProviderID == actor.ID || b.CustomerID == actor.ID {
		return bid, nil
	}
	return nil, utils.Forbidden("bid %s is not visible to you", bidID)
}

// ListForBooking shows the customer every bid; a provider only sees their own.
func (s *Service) ListForBooking(ctx context.Context, actor models.Actor, bookingID string) ([]models.Bid, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	list, err := s.bids.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, utils.Internal(err, "failed to list bids")
	}
	if actor.IsAdmin() || b.CustomerID == actor.ID {
		return list, nil
	}
	if !actor.IsProvider() {
		return nil, utils.Forbidden("booking %s is not visible to you", bookingID)
	}
	own := make([]models.Bid, 0, 1)
	for _, bid := range list {
		if bid.ProviderID == actor.ID {
			own = append(own, bid)
		}
	}
	return own, nil
}

func (s *Service) loadBid(ctx context.Context, id string) (*models.Bid, error) {
	bid, err := s.bids.GetByID(ctx, id)
	if errors.Is(err, bidRepo.ErrNotFound) {
		return nil, utils.NotFound("bid %s not found", id)
	}
	if err != nil {
		return nil, utils.Internal(err, "failed to load bid %s", id)
	}
	return bid, nil
}

func (s *Service) loadBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if errors.Is(err, bookingRepo.ErrNotFound) {
		return nil, utils.NotFound("booking %s not found", id)
	}
	if err != nil {
		return nil, utils.Internal(err, "failed to load booking %s", id)
	}
	return b, nil
}

func (s *Service) loadBidAndBooking(ctx context.Context, bidID string) (*models.Bid, *models.Booking, error) {
	bid, err := s.loadBid(ctx, bidID)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.loadBooking(ctx, bid.BookingID)
	if err != nil {
		return nil, nil, err
	}
	return bid, b, nil
}

func (s *Service) notify(ctx context.Context, n models.Notification) {
	notification.Deliver(ctx, s.notifier, s.logger, n)
}
