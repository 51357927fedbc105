package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/bazarhq/fulfillment/internal/domain/cart"
	"github.com/bazarhq/fulfillment/internal/domain/order"
	"github.com/bazarhq/fulfillment/internal/domain/payment"
	"github.com/bazarhq/fulfillment/internal/domain/user"
	"github.com/bazarhq/fulfillment/internal/handler"
	"github.com/bazarhq/fulfillment/internal/notify"
	"github.com/bazarhq/fulfillment/internal/remote"
	"github.com/bazarhq/fulfillment/internal/storage/postgres"
	"github.com/bazarhq/fulfillment/pkg/health"
	"github.com/bazarhq/fulfillment/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the expiry
// sweeper, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	payments := postgres.NewPaymentRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	carts := postgres.NewCartRepository(pool)

	// Remote services.
	gatewayClient := remote.NewGateway(cfg.Remote.GatewayURL, cfg.Remote.Timeout)
	walletClient := remote.NewWallet(cfg.Remote.WalletURL, cfg.Remote.Timeout)
	catalog := remote.NewCatalog(cfg.Remote.CatalogURL, cfg.Remote.Timeout)

	var directory user.Directory = postgres.NewUserDirectory(pool)
	if cfg.Remote.DirectoryURL != "" {
		directory = remote.NewDirectory(cfg.Remote.DirectoryURL, cfg.Remote.Timeout)
	}

	var otp handler.OTPSender = remote.NopSMS{}
	if cfg.Remote.SMSURL != "" {
		otp = remote.NewSMS(cfg.Remote.SMSURL, cfg.Remote.SMSSender, cfg.Remote.Timeout)
	}

	var notifier order.Notifier = notify.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka := notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg)
		defer func() {
			if err := kafka.Close(); err != nil {
				lg.Error("Close kafka writer", zap.Error(err))
			}
		}()
		notifier = kafka
	}

	// Domain services.
	capturer := cart.NewCapturer(catalog, cart.CapturerConfig{
		Currency:            cfg.Checkout.Currency,
		TaxRateBP:           cfg.Checkout.TaxRateBP,
		ShippingFee:         cfg.Checkout.ShippingFee,
		PriceToleranceMinor: cfg.Checkout.PriceTolerance,
	})
	paymentSvc := payment.NewService(payments, carts, capturer, directory, lg)
	materializer := order.NewMaterializer(payments, orders, cart.NewReconciler(carts), notifier, lg)

	sweeper := payment.NewExpirySweeper(payments, cfg.Payments.TTL, cfg.Payments.SweepInterval, lg)
	go func() { _ = sweeper.Run(ctx) }()

	// HTTP handlers.
	h := handler.NewHandler(
		paymentSvc,
		payment.NewGatewayStrategy(payments, gatewayClient, []byte(cfg.Payments.GatewaySecret)),
		payment.NewCODStrategy(payments),
		payment.NewWalletStrategy(payments, walletClient),
		materializer,
		orders,
		otp,
	)

	// Router: health endpoints + API routes on one server.
	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Register(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(router, "payment-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
