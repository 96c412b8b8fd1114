package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ticket-market/config"
	"ticket-market/internal/handlers"
	"ticket-market/internal/services"
	"ticket-market/internal/services/ledger"
	"ticket-market/internal/services/ledger/remote"
	_ "ticket-market/migrations"
	"ticket-market/models"
	"ticket-market/monitoring"
	"ticket-market/security"
	"ticket-market/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"go.uber.org/zap"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	logger, err := utils.NewLogger(utils.LogConfig{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	// Initialize ledgers
	ledgers, devLedger, err := newLedgers(cfg, logger)
	if err != nil {
		return err
	}

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(logger)
	}

	// Initialize services
	journal := services.NewJournal(redisClient, cfg.JournalKey)
	recordSink := services.NewRecordSink(app)

	// Network sinks deliver in the background; the journal stays synchronous
	broadcast := services.NewAsyncSink(
		services.NewPubNubSink(services.NewPubNubPublisher(pn), cfg.PubNubChannel),
		services.DefaultAsyncSinkBuffer, logger,
	)
	history := services.NewAsyncSink(recordSink, services.DefaultAsyncSinkBuffer, logger)
	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		broadcast.Close()
		history.Close()
		return e.Next()
	})

	market := services.NewMarket(services.MarketConfig{
		EngineAccount:      cfg.EngineAccount,
		AdminAccount:       cfg.AdminAccount,
		FeePercent:         cfg.FeePercent,
		MaxAuctionDuration: cfg.MaxAuctionDuration,
	}, ledgers, monitor, logger,
		journal,
		broadcast,
		history,
	)

	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute, logger)

	// Initialize handlers
	listingHandler := handlers.NewListingHandler(market, logger)
	tradeHandler := handlers.NewTradeHandler(market)
	queryHandler := handlers.NewQueryHandler(market.Queries, recordSink)
	adminHandler := handlers.NewAdminHandler(market, journal, cfg.AdminAccount, cfg.AdminKeyHash, logger)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	if monitor != nil {
		go monitor.Run(ctx, cfg.ReconcileInterval, market.Drifts)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel, logger)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Journal state first; configured approvals apply on top of it
		if err := restoreFromJournal(ctx, journal, market, logger); err != nil {
			return err
		}
		// Approvals are persisted by the record sink, which needs the bootstrapped app
		if err := approveTokens(ctx, market, cfg, logger); err != nil {
			return err
		}

		api := e.Router.Group("/api/v1/market")

		// Listing endpoints
		api.POST("/listings", listingHandler.CreateListing).BindFunc(limiter.Limit)
		api.DELETE("/listings/{id}", listingHandler.Unlist).BindFunc(limiter.Limit)
		api.POST("/listings/{id}/accept", listingHandler.AcceptHighestBid).BindFunc(limiter.Limit)

		// Trade endpoints
		api.POST("/listings/{id}/buy", tradeHandler.Buy).BindFunc(limiter.Limit)
		api.POST("/listings/{id}/bids", tradeHandler.PlaceBid).BindFunc(limiter.Limit)
		api.DELETE("/listings/{id}/bids", tradeHandler.WithdrawBid).BindFunc(limiter.Limit)

		// Query endpoints
		api.GET("/listings", queryHandler.ListListings)
		api.GET("/listings/{id}", queryHandler.GetListing)
		api.GET("/listings/{id}/event", queryHandler.GetEvent)
		api.GET("/listings/{id}/auction", queryHandler.GetAuction)
		api.GET("/listings/{id}/bids/{bidder}", queryHandler.GetBid)
		api.GET("/listings/{id}/history", queryHandler.GetHistory)
		api.GET("/holders/{account}/listings", queryHandler.GetHeldListings)
		api.GET("/currencies/{currency}", queryHandler.GetCurrency)

		// Admin endpoints
		admin := api.Group("/admin")
		admin.BindFunc(adminHandler.RequireAdminKey)
		admin.PUT("/currencies/{currency}", adminHandler.SetCurrencyApproval)
		admin.POST("/fees/native/withdraw", adminHandler.WithdrawNativeFees)
		admin.POST("/fees/tokens/{token}/withdraw", adminHandler.WithdrawTokenFees)
		admin.GET("/reconcile", adminHandler.Reconcile)
		admin.GET("/journal", adminHandler.JournalStats)

		// Ledger funding for local runs
		if cfg.IsDevelopment() && devLedger != nil {
			devHandler := handlers.NewDevHandler(devLedger, cfg.EngineAccount)
			e.Router.POST("/api/v1/dev/mint", devHandler.Mint)
			e.Router.GET("/api/v1/dev/balances/{account}", devHandler.Balance)
		}

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		logger.Info("server routes registered", zap.String("environment", cfg.Environment))

		return e.Next()
	})

	// Start server
	return app.Start()
}

// newLedgers picks the in-memory ledger when no remote ledger is configured.
// The memory ledger is also returned so development routes can fund accounts.
func newLedgers(cfg *config.Config, logger *zap.Logger) (*ledger.Registry, *ledger.Memory, error) {
	if cfg.LedgerURL == "" {
		logger.Warn("LEDGER_URL is not set, using the in-memory ledger")
		mem := ledger.NewMemory()
		return ledger.NewRegistry(mem.Native(cfg.EngineAccount), mem), mem, nil
	}

	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.LedgerURL,
		HMACKey: cfg.LedgerHMACKey,
		Timeout: cfg.LedgerTimeout,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ledger client: %w", err)
	}
	return ledger.NewRegistry(client.Native(), client), nil, nil
}

func approveTokens(ctx context.Context, market *services.Market, cfg *config.Config, logger *zap.Logger) error {
	if cfg.AdminAccount == "" {
		logger.Warn("ADMIN_ACCOUNT is not set, admin operations are disabled")
		return nil
	}
	for _, token := range cfg.ApprovedTokens {
		if err := market.Registry.SetCurrencyApproval(ctx, cfg.AdminAccount, models.Token(token), true); err != nil {
			return fmt.Errorf("failed to approve token %s: %w", token, err)
		}
	}
	return nil
}

// restoreFromJournal folds the durable journal into the market before it
// takes traffic.
func restoreFromJournal(ctx context.Context, journal *services.Journal, market *services.Market, logger *zap.Logger) error {
	n, err := journal.Len(ctx)
	if err != nil {
		return fmt.Errorf("failed to read event journal: %w", err)
	}
	if n == 0 {
		return nil
	}

	p, err := services.ReplayJournal(ctx, journal)
	if err != nil {
		return fmt.Errorf("failed to replay event journal: %w", err)
	}
	if err := market.Restore(ctx, p); err != nil {
		return fmt.Errorf("failed to restore market: %w", err)
	}

	logger.Info("market restored from event journal",
		zap.Int64("events", n),
		zap.Int("listings", len(p.Listings)),
		zap.Int("auctions", len(p.Auctions)),
	)
	return nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc, logger *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("shutdown signal received, cleaning up")
	cancel()
}
