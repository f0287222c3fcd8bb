package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bidmarket/models"
	"bidmarket/services/booking"
	"bidmarket/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProcessor struct {
	payload   []byte
	signature string
	err       error
}

func (f *fakeProcessor) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	f.payload, f.signature = payload, signature
	return f.err
}

func postWebhook(h *WebhookHandler, body string) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/webhook", h.PaymentWebhookHandler)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPaymentWebhookHandler(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"processed", nil, http.StatusOK},
		{"bad signature", utils.Validation("signature mismatch").WithCode("INVALID_SIGNATURE"), http.StatusBadRequest},
		{"transient", utils.Internal(errors.New("mongo down"), "failed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{err: tt.err}
			w := postWebhook(NewWebhookHandler(p, nil), `{"id":"evt_1"}`)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, `{"id":"evt_1"}`, string(p.payload))
			assert.Equal(t, "t=1,v1=abc", p.signature)
		})
	}
}

func TestPaymentWebhookHandlerRejectsHugeBody(t *testing.T) {
	p := &fakeProcessor{}
	w := postWebhook(NewWebhookHandler(p, nil), strings.Repeat("x", maxWebhookBody+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Nil(t, p.payload)
}

type fakeBookings struct {
	booking.BookingService
	accepted []string
	acceptFn func() (*booking.Result, error)
}

func (f *fakeBookings) AcceptBid(_ context.Context, actor models.Actor, bookingID, bidID string, method models.PaymentMethod) (*booking.Result, error) {
	f.accepted = append(f.accepted, actor.ID, bookingID, bidID, string(method))
	return f.acceptFn()
}

func (f *fakeBookings) Get(_ context.Context, _ models.Actor, bookingID string) (*models.Booking, error) {
	return &models.Booking{ID: bookingID}, nil
}

type fakeTransferer struct{ calls []string }

func (f *fakeTransferer) TransferToProvider(_ context.Context, bookingID string) error {
	f.calls = append(f.calls, bookingID)
	return nil
}

func serve(actor models.Actor, method, path, body string, register func(r *gin.Engine)) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", actor.ID)
		c.Set("role", actor.Role)
	})
	register(r)
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAcceptBidHandler(t *testing.T) {
	customer := models.Actor{ID: "c1", Role: models.RoleCustomer}
	svc := &fakeBookings{acceptFn: func() (*booking.Result, error) {
		return &booking.Result{Booking: &models.Booking{ID: "b1"}, CheckoutURL: "https://pay.test/cs_1"}, nil
	}}
	h := NewBookingHandler(svc, nil)
	register := func(r *gin.Engine) { r.POST("/bookings/:id/accept", h.AcceptBidHandler) }

	w := serve(customer, http.MethodPost, "/bookings/b1/accept", `{"bidId":"bid1","paymentMethod":"ONLINE"}`, register)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://pay.test/cs_1")
	assert.Equal(t, []string{"c1", "b1", "bid1", "ONLINE"}, svc.accepted)

	w = serve(customer, http.MethodPost, "/bookings/b1/accept", `{"bidId":"bid1","paymentMethod":"BARTER"}`, register)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.acceptFn = func() (*booking.Result, error) {
		return nil, utils.Conflict("booking already has an accepted bid").WithCode("BID_ALREADY_ACCEPTED")
	}
	w = serve(customer, http.MethodPost, "/bookings/b1/accept", `{"bidId":"bid1","paymentMethod":"CASH"}`, register)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "BID_ALREADY_ACCEPTED")
}

func TestTransferHandlerIsAdminOnly(t *testing.T) {
	transfers := &fakeTransferer{}
	h := NewBookingHandler(&fakeBookings{}, transfers)
	register := func(r *gin.Engine) { r.POST("/bookings/:id/transfer", h.TransferHandler) }

	w := serve(models.Actor{ID: "p1", Role: models.RoleProvider}, http.MethodPost, "/bookings/b1/transfer", "", register)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, transfers.calls)

	w = serve(models.Actor{ID: "a1", Role: models.RoleAdmin}, http.MethodPost, "/bookings/b1/transfer", "", register)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"b1"}, transfers.calls)
}

func TestHandlersRequireActor(t *testing.T) {
	h := NewBookingHandler(&fakeBookings{}, nil)
	r := gin.New()
	r.GET("/bookings/:id", h.GetBookingHandler)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bookings/b1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthHandler(t *testing.T) {
	m := utils.NewHealthMonitor().
		Add("mongo", func(context.Context) error { return nil }).
		Add("redis", func(context.Context) error { return errors.New("connection refused") })
	m.Check(context.Background())

	r := gin.New()
	r.GET("/health", HealthHandler(m))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":false`)
	assert.Contains(t, w.Body.String(), `"mongo":true`)
}
