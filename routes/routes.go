package routes

import (
	"time"

	"bidmarket/handlers"
	"bidmarket/middleware"
	"bidmarket/models"
	"bidmarket/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterBookingRoutes registers the booking aggregate endpoints.
func RegisterBookingRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	bookings := api.Group("/bookings")
	{
		bookings.POST("", middleware.RequireRole(models.RoleCustomer), hb.Booking.CreateBookingHandler)
		bookings.GET("", middleware.RequireRole(models.RoleCustomer), hb.Booking.ListBookingsHandler)
		bookings.GET("/:id", hb.Booking.GetBookingHandler)
		bookings.GET("/:id/bids", hb.Bid.ListBidsHandler)
		bookings.POST("/:id/accept", middleware.RequireRole(models.RoleCustomer), hb.Booking.AcceptBidHandler)
		bookings.POST("/:id/change-bid", middleware.RequireRole(models.RoleCustomer), hb.Booking.ChangeBidHandler)
		bookings.POST("/:id/cancel", hb.Booking.CancelBookingHandler)
		bookings.POST("/:id/verify-completion", middleware.RequireRole(models.RoleProvider), hb.Booking.VerifyCompletionHandler)
		bookings.POST("/:id/refund", middleware.RequireRole(models.RoleAdmin), hb.Booking.RefundHandler)
		bookings.POST("/:id/transfer", middleware.RequireRole(models.RoleAdmin), hb.Booking.TransferHandler)
	}
}

// RegisterBidRoutes registers the bid registry endpoints.
func RegisterBidRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	bids := api.Group("/bids")
	{
		bids.POST("", middleware.RequireRole(models.RoleProvider), hb.Bid.CreateBidHandler)
		bids.PATCH("/:id/status", hb.Bid.ChangeStatusHandler)
		bids.POST("/:id/cancel", middleware.RequireRole(models.RoleProvider), hb.Bid.CancelBidHandler)
	}
}

// RegisterEarningsRoutes registers the provider ledger endpoint.
func RegisterEarningsRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	api.GET("/earnings/me", middleware.RequireRole(models.RoleProvider), hb.Earnings.MyEarningsHandler)
}

// RegisterDeviceRoutes registers push token management.
func RegisterDeviceRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	api.PUT("/users/me/fcm-token", hb.Device.UpdateFCMTokenHandler)
}

// RegisterRoutes sets up global middleware and every endpoint group.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle, health *utils.HealthMonitor) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", handlers.HealthHandler(health))

	// The gateway authenticates with its signature, not a bearer token.
	r.POST("/api/payments/webhook", hb.Webhook.PaymentWebhookHandler)

	api := r.Group("/api")
	api.Use(middleware.JWTAuthMiddleware())
	RegisterBookingRoutes(api, hb)
	RegisterBidRoutes(api, hb)
	RegisterEarningsRoutes(api, hb)
	RegisterDeviceRoutes(api, hb)
}
