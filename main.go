package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"

	"tikit/config"
	"tikit/handlers"
	_ "tikit/migrations"
	"tikit/monitoring"
	"tikit/realtime"
	"tikit/security"
	"tikit/services"
	"tikit/utils"
)

func main() {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey
	pnConfig.UUID = cfg.PubNubUUID

	var pn *pubnub.PubNub
	if cfg.PubNubSubscribeKey != "" {
		pn = pubnub.NewPubNub(pnConfig)
	}

	// Realtime plumbing
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry)
	notifier := realtime.NewNotifier(registry, pn, cfg.EventUpdateTopic)

	// Create context for background tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Monitoring
	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(ctx, registry)
	}

	// Services
	eventCache := services.NewEventCache(redisClient, cfg.EventCacheTTL)
	ticketStore := services.NewTicketStore(app)
	ticketService := services.NewTicketService(ticketStore, notifier, eventCache, services.TicketServiceOptions{
		LogVerifyScans: cfg.LogVerifyScans,
	})
	paymentService := services.NewPaymentService(app, redisClient, pn, notifier)

	// Handlers
	ticketHandler := handlers.NewTicketHandler(ticketService, monitor)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg.Environment == "development")
	realtimeHandler := handlers.NewRealtimeHandler(app, registry, dispatcher, notifier, cfg.WriteTimeout, cfg.MaxMessageSize)

	rateLimiter := security.NewRateLimiter(redisClient, cfg.ScanRateLimit)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	go notifier.Listen(ctx)
	go paymentService.SubscribeToPaymentNotifications(ctx)
	if cfg.EnableMetrics {
		go monitoring.StartMetricsServer(ctx, cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	// Register routes
	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Ticket lifecycle
		e.Router.POST("/api/tickets/issue", ticketHandler.IssueTicket)
		e.Router.GET("/api/tickets/my-tickets", ticketHandler.GetMyTickets)
		e.Router.GET("/api/tickets/{ticketId}", ticketHandler.GetTicket)
		e.Router.POST("/api/tickets/{ticketId}/cancel", ticketHandler.CancelTicket)
		e.Router.GET("/api/tickets/{ticketId}/scans", ticketHandler.GetScanHistory)

		// Scan endpoints, rate limited per agent
		e.Router.POST("/api/tickets/verify", rateLimiter.ScanRateLimit(ticketHandler.VerifyTicket))
		e.Router.POST("/api/tickets/redeem", rateLimiter.ScanRateLimit(ticketHandler.RedeemTicket))

		// Payment endpoints
		e.Router.POST("/api/payments", paymentHandler.CreatePayment)
		e.Router.GET("/api/payments/{paymentId}", paymentHandler.GetPaymentDetails)
		e.Router.GET("/api/payments/{paymentId}/status", paymentHandler.CheckPaymentStatus)

		// Realtime endpoints
		e.Router.GET("/api/realtime/ws", realtimeHandler.HandleWebSocket)
		e.Router.GET("/api/realtime/connections", realtimeHandler.GetConnectionStats)
		e.Router.POST("/api/realtime/broadcast", realtimeHandler.BroadcastMessage)
		e.Router.POST("/api/realtime/notify-event-update", realtimeHandler.NotifyEventUpdate)

		// Test endpoint for payment simulation
		if cfg.Environment == "development" {
			e.Router.POST("/api/test/simulate-payment", paymentHandler.SimulatePayment)
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}

// handleShutdown cancels background tasks on SIGINT/SIGTERM before the
// process exits.
func handleShutdown(cancel context.CancelFunc) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down background tasks...")
	cancel()
}
