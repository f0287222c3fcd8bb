package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bidmarket/config"
	"bidmarket/cron"
	"bidmarket/database"
	bidRepo "bidmarket/database/repository/bid"
	bookingRepo "bidmarket/database/repository/booking"
	catalogRepo "bidmarket/database/repository/catalog"
	couponRepo "bidmarket/database/repository/coupon"
	earningsRepo "bidmarket/database/repository/earnings"
	paymentRepo "bidmarket/database/repository/payment"
	settlementRepo "bidmarket/database/repository/settlement"
	userRepoPkg "bidmarket/database/repository/user"
	"bidmarket/handlers"
	"bidmarket/middleware"
	"bidmarket/routes"
	"bidmarket/services/bid"
	"bidmarket/services/booking"
	"bidmarket/services/coupon"
	"bidmarket/services/earnings"
	"bidmarket/services/invoice"
	"bidmarket/services/notification"
	"bidmarket/services/payment"
	"bidmarket/services/settlement"
	"bidmarket/services/storage"
	"bidmarket/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger := utils.GetLogger()
	defer func() { _ = logger.Sync() }()

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	database.InitDB()
	utils.InitRedis()

	// repositories.
	userRepo := userRepoPkg.NewMongoUserRepo()
	bookings := bookingRepo.NewMongoBookingRepo()
	bids := bidRepo.NewMongoBidRepo()
	payments := paymentRepo.NewMongoPaymentRepo()
	intents := settlementRepo.NewMongoSettlementRepo()
	catalog := catalogRepo.NewCachedCatalogRepo(catalogRepo.NewMongoCatalogRepo(), utils.GetCacheClient(), cfg.CatalogCacheTTL, logger)
	tx := database.NewMongoTxRunner(database.MongoClient)

	// notification sinks.
	var sinks notification.Fanout
	if err := utils.FirebaseInit(); err != nil {
		logger.Warn("main: push notifications disabled", zap.Error(err))
	} else if fcm, err := notification.NewFCMNotifier(utils.FCMClient, userRepo); err != nil {
		logger.Warn("main: push notifications disabled", zap.Error(err))
	} else {
		sinks = append(sinks, fcm)
	}
	broadcaster, err := notification.NewBroadcaster(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.Warn("main: event broadcast disabled", zap.Error(err))
	} else {
		sinks = append(sinks, broadcaster)
		defer broadcaster.Close()
	}
	notifier := notification.NewAsync(sinks, logger)

	// object storage and invoices.
	var files storage.ObjectStorage
	var invoices settlement.InvoiceIssuer
	if cld, err := storage.NewCloudinaryStorage(); err != nil {
		logger.Warn("main: object storage disabled, invoices will not be issued", zap.Error(err))
	} else {
		files = cld
		invoices = invoice.NewIssuer(invoice.NewPDFRenderer(cfg.BrandName, cfg.InvoiceVerifyURL), cld)
	}

	// services.
	ledger := earnings.NewLedger(earningsRepo.NewMongoEarningsRepo(), userRepo, cfg.Currency, logger)
	orchestrator := settlement.New(settlement.Deps{
		Tx:       tx,
		Bookings: bookings,
		Bids:     bids,
		Payments: payments,
		Intents:  intents,
		Users:    userRepo,
		Ledger:   ledger,
		Gateway:  payment.NewStripeGateway(cfg.StripeKey, cfg.StripeWebhookSecret),
		Notifier: notifier,
		Invoices: invoices,
		Logger:   logger,
	}, settlement.Config{
		Currency:   cfg.Currency,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
	})

	queueOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisQueueDB,
	}
	queue := cron.NewTaskQueue(queueOpt)
	orchestrator.SetTransferScheduler(queue)

	bookingService := booking.New(booking.Deps{
		Tx:         tx,
		Bookings:   bookings,
		Bids:       bids,
		Catalog:    catalog,
		Users:      userRepo,
		Coupons:    coupon.NewLedger(couponRepo.NewMongoCouponRepo(), logger),
		Settlement: orchestrator,
		Notifier:   notifier,
		Storage:    files,
		Locker:     utils.NewRedisLocker(utils.GetLockClient()),
		Logger:     logger,
	}, booking.Config{DefaultRevenuePercent: cfg.DefaultAdminRevenuePercent})
	bidService := bid.New(bid.Deps{
		Tx:         tx,
		Bids:       bids,
		Bookings:   bookings,
		Aggregate:  bookingService,
		Settlement: orchestrator,
		Notifier:   notifier,
		Logger:     logger,
	})

	// background work.
	worker := cron.NewWorker(queueOpt, orchestrator, cron.WorkerConfig{StaleAfter: cfg.SettlementStaleAfter}, logger)
	worker.Start()
	scheduler, err := cron.NewScheduler(queue, cron.ScheduleConfig{
		ReconcileSpec: cfg.ReconcileCron,
		SweepSpec:     cfg.TransferSweepCron,
	}, logger)
	if err != nil {
		logger.Sugar().Fatalf("main: invalid settlement schedule: %v", err)
	}
	scheduler.Start()

	bgCtx, stopBackground := context.WithCancel(context.Background())
	health := utils.NewHealthMonitor().
		AddMongo(database.MongoClient).
		AddRedis("redisCache", utils.GetCacheClient()).
		AddRedis("redisLock", utils.GetLockClient()).
		AddRedis("redisQueue", utils.QueueClient)
	health.Start(bgCtx, time.Minute)

	// Create the Gin router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin))

	routes.RegisterRoutes(router, &handlers.HandlerBundle{
		Booking:  handlers.NewBookingHandler(bookingService, orchestrator),
		Bid:      handlers.NewBidHandler(bidService),
		Webhook:  handlers.NewWebhookHandler(orchestrator, logger),
		Earnings: handlers.NewEarningsHandler(ledger),
		Device:   handlers.NewDeviceHandler(userRepo),
	}, health)

	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	scheduler.Stop()
	worker.Shutdown()
	if err := queue.Close(); err != nil {
		logger.Warn("main: closing task queue", zap.Error(err))
	}
	notifier.Wait()
	stopBackground()
	if err := database.MongoClient.Disconnect(ctx); err != nil {
		logger.Warn("main: closing mongo", zap.Error(err))
	}

	logger.Sugar().Info("main: server stopped gracefully")
}
