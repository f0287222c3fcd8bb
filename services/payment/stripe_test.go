package payment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testSecret = "whsec_test"

func sign(payload string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  testSecret,
	}).Header
}

func TestParseWebhookCheckoutCompleted(t *testing.T) {
	payload := `{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"status": "complete",
			"payment_status": "paid",
			"payment_intent": "pi_1",
			"amount_total": 18000,
			"currency": "usd",
			"metadata": {"bookingId": "b1", "bidId": "bid1"}
		}}
	}`
	g := NewStripeGateway("sk_test", testSecret)

	evt, err := g.ParseWebhook([]byte(payload), sign(payload))
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, evt.Type)
	require.NotNil(t, evt.Checkout)
	assert.Equal(t, "pi_1", evt.Checkout.PaymentIntentID)
	assert.Equal(t, 180.0, evt.Checkout.AmountTotal)
	assert.Equal(t, "b1", evt.Checkout.Metadata["bookingId"])
	assert.True(t, evt.Checkout.Paid())
}

func TestParseWebhookTransferCreated(t *testing.T) {
	payload := `{
		"id": "evt_2",
		"type": "transfer.created",
		"data": {"object": {"id": "tr_1", "object": "transfer", "amount": 6500, "metadata": {"bookingId": "b1"}}}
	}`
	g := NewStripeGateway("sk_test", testSecret)

	evt, err := g.ParseWebhook([]byte(payload), sign(payload))
	require.NoError(t, err)
	require.NotNil(t, evt.Transfer)
	assert.Equal(t, "tr_1", evt.Transfer.ID)
	assert.Equal(t, 65.0, evt.Transfer.Amount)
	assert.Equal(t, "b1", evt.Transfer.Metadata["bookingId"])
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	g := NewStripeGateway("sk_test", testSecret)
	_, err := g.ParseWebhook([]byte(`{"id":"evt"}`), "t=1,v1=deadbeef")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(14400), ToMinorUnits(144))
	assert.Equal(t, int64(1999), ToMinorUnits(19.99))
	assert.Equal(t, 19.99, FromMinorUnits(1999))
}
