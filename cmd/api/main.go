package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/internal/returns"
	"github.com/angelmondragon/storefront-backend/internal/reviews"
	"github.com/angelmondragon/storefront-backend/internal/wishlist"
	"github.com/angelmondragon/storefront-backend/pkg/cache"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const webhookReplayTTL = 72 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(ctx, "redis not configured; idempotency, rate limiting and webhook dedupe are disabled")
	}

	var catalogCache cache.Cache = cache.NewMemory()
	if cfg.Cache.UseRedis() && redisClient != nil {
		catalogCache, err = cache.NewRedis(redisClient)
		if err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	conn := dbClient.DB()
	notificationRepo := notifications.NewRepository(conn)
	productRepo := products.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	couponRepo := coupons.NewRepository(conn)
	zoneRepo := shipping.NewRepository(conn)

	notificationSvc, err := notifications.NewService(notificationRepo)
	if err != nil {
		return err
	}
	productSvc, err := products.NewService(products.ServiceParams{
		Repo:     productRepo,
		Cache:    catalogCache,
		Notifier: notificationSvc,
		Logger:   logg,
		CacheTTL: cfg.Cache.TTL,
	})
	if err != nil {
		return err
	}
	cartSvc, err := cart.NewService(cartRepo, productRepo)
	if err != nil {
		return err
	}
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:       orderRepo,
		Products:   productRepo,
		Transactor: dbClient,
		Notifier:   notificationSvc,
		Logger:     logg,
	})
	if err != nil {
		return err
	}
	couponSvc, err := coupons.NewService(coupons.ServiceParams{
		Repo:    couponRepo,
		Metrics: checkoutMetrics,
		Logger:  logg,
	})
	if err != nil {
		return err
	}
	calculator, err := shipping.NewCalculator(cfg.Shipping, zoneRepo)
	if err != nil {
		return err
	}
	shippingSvc, err := shipping.NewService(zoneRepo, calculator)
	if err != nil {
		return err
	}
	wishlistSvc, err := wishlist.NewService(wishlist.NewRepository(conn), productRepo)
	if err != nil {
		return err
	}
	reviewSvc, err := reviews.NewService(reviews.ServiceParams{
		Repo:       reviews.NewRepository(conn),
		Products:   productRepo,
		Purchases:  orderRepo,
		Transactor: dbClient,
	})
	if err != nil {
		return err
	}

	feeRate, err := cfg.Checkout.FeeRate()
	if err != nil {
		return err
	}
	pricer, err := checkout.NewPricer(feeRate)
	if err != nil {
		return err
	}
	finalizer, err := checkout.NewFinalizer(checkout.FinalizerParams{
		Transactor:        dbClient,
		Orders:            orderRepo,
		Products:          productRepo,
		Cart:              cartRepo,
		Coupons:           couponSvc,
		Notifier:          notificationSvc,
		Mailer:            notifications.NewLogMailer(logg),
		Logger:            logg,
		LowStockThreshold: cfg.Checkout.LowStockThreshold,
	})
	if err != nil {
		return err
	}
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Transactor: dbClient,
		Cart:       cartRepo,
		Products:   productRepo,
		Orders:     orderRepo,
		Coupons:    couponSvc,
		Shipping:   calculator,
		Pricer:     pricer,
		Finalizer:  finalizer,
		Metrics:    checkoutMetrics,
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	var gateway payments.Gateway
	if cfg.Razorpay.Enabled() {
		rzp, err := payments.NewRazorpay(ctx, cfg.Razorpay, logg)
		if err != nil {
			return err
		}
		gateway = rzp
	} else {
		logg.Warn(ctx, "razorpay not configured; only cash on delivery is available")
	}
	var guard *payments.WebhookGuard
	if redisClient != nil {
		guard, err = payments.NewWebhookGuard(redisClient, webhookReplayTTL)
		if err != nil {
			return err
		}
	}
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Gateway:   gateway,
		Orders:    orderRepo,
		OrderSvc:  orderSvc,
		Finalizer: finalizer,
		Guard:     guard,
		Metrics:   checkoutMetrics,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	returnSvc, err := returns.NewService(returns.ServiceParams{
		Repo:       returns.NewRepository(conn),
		Orders:     orderRepo,
		Transactor: dbClient,
		Notifier:   notificationSvc,
		Refunder:   paymentSvc,
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	router := routes.NewRouter(cfg, logg, routes.Infra{
		DB:       dbClient,
		Redis:    redisClient,
		Gatherer: registry,
	}, routes.Services{
		Products:      productSvc,
		Cart:          cartSvc,
		Checkout:      checkoutSvc,
		Orders:        orderSvc,
		Coupons:       couponSvc,
		Shipping:      shippingSvc,
		Payments:      paymentSvc,
		Notifications: notificationSvc,
		Wishlist:      wishlistSvc,
		Reviews:       reviewSvc,
		Returns:       returnSvc,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	server := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(router, "storefront-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"addr":          addr,
		"shipping_mode": cfg.Shipping.Mode,
		"cache_backend": cfg.Cache.Backend,
	})
	logg.Info(logCtx, "starting api server")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		logg.Info(logCtx, "shutting down api server")
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
