// Package paymenttest provides an in-memory payment.Gateway for tests.
package paymenttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"bidmarket/services/payment"
)

// ValidSignature is the only webhook signature the fake accepts.
const ValidSignature = "t=1,v1=fake"

// ErrIdempotencyMismatch is returned when an idempotency key is reused with
// different parameters.
var ErrIdempotencyMismatch = errors.New("idempotency key reused with different parameters")

// Gateway records every call and answers idempotently per key, the way the
// real gateway does.
type Gateway struct {
	mu sync.Mutex

	Balance        float64
	PayoutsOff     bool
	CheckoutErr    error
	TransferErr    error
	RefundErr      error
	CheckoutCalls  int
	TransferCalls  []payment.TransferRequest
	RefundCalls    []payment.RefundRequest
	sessions       map[string]*payment.CheckoutSession
	sessionsByKey  map[string]string
	transfersByKey map[string]*payment.Transfer
	refundsByKey   map[string]*payment.Refund
	events         map[string]*payment.Event
	seq            int
}

func New() *Gateway {
	return &Gateway{
		Balance:        1_000_000,
		sessions:       map[string]*payment.CheckoutSession{},
		sessionsByKey:  map[string]string{},
		transfersByKey: map[string]*payment.Transfer{},
		refundsByKey:   map[string]*payment.Refund{},
		events:         map[string]*payment.Event{},
	}
}

func (g *Gateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%d", prefix, g.seq)
}

func (g *Gateway) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CheckoutCalls++
	if g.CheckoutErr != nil {
		return nil, g.CheckoutErr
	}
	if id, ok := g.sessionsByKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		s := *g.sessions[id]
		return &s, nil
	}
	meta := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		meta[k] = v
	}
	s := &payment.CheckoutSession{
		ID:          g.next("cs"),
		Status:      payment.SessionOpen,
		AmountTotal: req.Amount,
		Currency:    req.Currency,
		Metadata:    meta,
	}
	s.URL = "https://checkout.test/" + s.ID
	g.sessions[s.ID] = s
	g.sessionsByKey[req.IdempotencyKey] = s.ID
	out := *s
	return &out, nil
}

func (g *Gateway) GetCheckoutSession(_ context.Context, id string) (*payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such checkout session: %s", id)
	}
	out := *s
	return &out, nil
}

func (g *Gateway) CreateTransfer(_ context.Context, req payment.TransferRequest) (*payment.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.TransferErr != nil {
		return nil, g.TransferErr
	}
	if t, ok := g.transfersByKey[req.IdempotencyKey]; ok {
		if t.Amount != req.Amount {
			return nil, fmt.Errorf("%w: key %s was used for %.2f, not %.2f", ErrIdempotencyMismatch, req.IdempotencyKey, t.Amount, req.Amount)
		}
		return t, nil
	}
	g.TransferCalls = append(g.TransferCalls, req)
	g.Balance -= req.Amount
	t := &payment.Transfer{ID: g.next("tr"), Amount: req.Amount, Metadata: req.Metadata}
	g.transfersByKey[req.IdempotencyKey] = t
	return t, nil
}

func (g *Gateway) CreateRefund(_ context.Context, req payment.RefundRequest) (*payment.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.RefundErr != nil {
		return nil, g.RefundErr
	}
	if r, ok := g.refundsByKey[req.IdempotencyKey]; ok {
		return r, nil
	}
	g.RefundCalls = append(g.RefundCalls, req)
	r := &payment.Refund{ID: g.next("re"), Status: "succeeded"}
	g.refundsByKey[req.IdempotencyKey] = r
	return r, nil
}

func (g *Gateway) AvailableBalance(context.Context, string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Balance, nil
}

func (g *Gateway) PayoutsEnabled(context.Context, string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.PayoutsOff, nil
}

func (g *Gateway) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	if signature != ValidSignature {
		return nil, payment.ErrInvalidSignature
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	evt, ok := g.events[string(payload)]
	if !ok {
		return nil, errors.New("unknown event payload")
	}
	return evt, nil
}

// Pay completes the customer side of a checkout session.
func (g *Gateway) Pay(sessionID string) *payment.CheckoutSession {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.sessions[sessionID]
	s.Status = payment.SessionComplete
	s.PaymentStatus = payment.SessionPaid
	s.PaymentIntentID = "pi_" + sessionID
	out := *s
	return &out
}

// Expire lets a checkout session lapse unpaid.
func (g *Gateway) Expire(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sessionID].Status = payment.SessionExpired
}

// CheckoutCompleted returns a signed checkout.session.completed delivery.
func (g *Gateway) CheckoutCompleted(sessionID string) []byte {
	g.mu.Lock()
	s := *g.sessions[sessionID]
	g.mu.Unlock()
	return g.register(&payment.Event{Type: payment.EventCheckoutCompleted, Checkout: &s})
}

// TransferCreated returns a signed transfer.created delivery.
func (g *Gateway) TransferCreated(t *payment.Transfer) []byte {
	return g.register(&payment.Event{Type: payment.EventTransferCreated, Transfer: t})
}

// LastTransfer returns the most recent transfer created for key.
func (g *Gateway) LastTransfer(key string) *payment.Transfer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transfersByKey[key]
}

func (g *Gateway) register(evt *payment.Event) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	evt.ID = g.next("evt")
	payload, _ := json.Marshal(map[string]string{"id": evt.ID, "type": evt.Type})
	evt.Raw = payload
	g.events[string(payload)] = evt
	return payload
}

var _ payment.Gateway = (*Gateway)(nil)
