package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway implements Gateway on Stripe Checkout and Connect transfers.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(key, webhookSecret string) *StripeGateway {
	return &StripeGateway{api: client.New(key, nil), webhookSecret: webhookSecret}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(ToMinorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
		}},
		Metadata: req.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return toCheckoutSession(sess, nil), nil
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get checkout session %s: %w", id, err)
	}
	raw, _ := json.Marshal(sess)
	return toCheckoutSession(sess, raw), nil
}

func (g *StripeGateway) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(ToMinorUnits(req.Amount)),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(req.Destination),
		Metadata:    req.Metadata,
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	tr, err := g.api.Transfers.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe transfer: %w", err)
	}
	return &Transfer{ID: tr.ID, Amount: FromMinorUnits(tr.Amount), Metadata: tr.Metadata}, nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Metadata:      req.Metadata,
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(ToMinorUnits(req.Amount))
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	r, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe refund: %w", err)
	}
	return &Refund{ID: r.ID, Status: string(r.Status)}, nil
}

func (g *StripeGateway) AvailableBalance(ctx context.Context, currency string) (float64, error) {
	params := &stripe.BalanceParams{}
	params.Context = ctx

	bal, err := g.api.Balance.Get(params)
	if err != nil {
		return 0, fmt.Errorf("stripe balance: %w", err)
	}
	for _, a := range bal.Available {
		if strings.EqualFold(string(a.Currency), currency) {
			return FromMinorUnits(a.Amount), nil
		}
	}
	return 0, nil
}

func (g *StripeGateway) PayoutsEnabled(ctx context.Context, accountID string) (bool, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := g.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return false, fmt.Errorf("stripe account %s: %w", accountID, err)
	}
	return acct.PayoutsEnabled, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type), Raw: payload}
	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Checkout = toCheckoutSession(&sess, evt.Data.Raw)
	case stripe.EventTypeTransferCreated:
		var tr stripe.Transfer
		if err := json.Unmarshal(evt.Data.Raw, &tr); err != nil {
			return nil, fmt.Errorf("decode transfer: %w", err)
		}
		out.Transfer = &Transfer{ID: tr.ID, Amount: FromMinorUnits(tr.Amount), Metadata: tr.Metadata}
	}
	return out, nil
}

func toCheckoutSession(sess *stripe.CheckoutSession, raw []byte) *CheckoutSession {
	out := &CheckoutSession{
		ID:            sess.ID,
		URL:           sess.URL,
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   FromMinorUnits(sess.AmountTotal),
		Currency:      string(sess.Currency),
		Metadata:      sess.Metadata,
		Raw:           raw,
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	return out
}
