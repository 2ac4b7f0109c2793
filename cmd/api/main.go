package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/address"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/cart"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/catalog"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/checkout"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/config"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/coupon"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/database"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/delivery"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/events"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/gateway"
	h "github.com/klebedieva/le-Trois-Quarts-sub001/internal/http"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/logger"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/metrics"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/orders"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/pricing"
	"github.com/klebedieva/le-Trois-Quarts-sub001/internal/publisher"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	log.Info("checkout api starting", zap.String("env", cfg.Env), zap.String("cart_backend", string(cfg.CartBackend)))
	var wg sync.WaitGroup
	health := map[string]h.HealthCheck{}
	bus := events.NewBus()
	defer metrics.Subscribe(bus)()

	// Menu catalog
	menu, err := catalog.NewRepository(cfg.CatalogDB)
	if err != nil {
		log.Fatal("failed to open menu database", zap.Error(err))
	}
	defer menu.Close()
	if err := menu.RunMigrations(cfg.CatalogMigr); err != nil {
		log.Fatal("failed to run menu migrations", zap.Error(err))
	}

	// Cart and checkout state storage
	var (
		cartStorage cart.Storage
		states      checkout.StateStore
		redisClient *redis.Client
		mongoDB     *mongo.Database
	)
	if cfg.CartBackend != config.CartBackendMemory {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
		defer redisClient.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal("failed to connect to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		health["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		states = checkout.NewRedisStateStore(redisClient, 0, cfg.IdempotencyWindow)
	} else {
		states = checkout.NewMemoryStateStore()
	}

	switch cfg.CartBackend {
	case config.CartBackendRedis:
		cartStorage = cart.NewRedisStorage(redisClient, cfg.CartTTL)
	case config.CartBackendMongo:
		connCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		mongoDB, err = cart.ConnectMongoDB(connCtx, cfg.MongoURI, cfg.MongoDBName)
		if err == nil {
			ms := cart.NewMongoStorage(mongoDB)
			err = ms.CreateIndexes(connCtx)
			cartStorage = ms
		}
		cancel()
		if err != nil {
			log.Fatal("failed to set up mongo cart storage", zap.Error(err))
		}
		health["mongo"] = func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, nil) }
	default:
		cartStorage = cart.NewMemoryStorage()
	}
	cartStore := cart.NewStore(cartStorage, menu, bus, log.Named("cart"))

	// Collaborators: in process, or remote when COLLABORATOR_BASE_URL is set
	var (
		validator    address.Validator
		couponSvc    checkout.CouponService
		orderSvc     checkout.OrderService
		collab       collaboratorHandlers
		poller       *publisher.OutboxPoller
		pollerCancel context.CancelFunc = func() {}
		db           *sql.DB
	)
	if cfg.CollaboratorBaseURL != "" {
		log.Info("using remote collaborators", zap.String("base_url", cfg.CollaboratorBaseURL))
		validator = gateway.NewAddressClient(cfg.CollaboratorBaseURL, cfg.CollaboratorTimeout)
		couponSvc = gateway.NewCouponClient(cfg.CollaboratorBaseURL, cfg.CollaboratorTimeout)
		orderSvc = gateway.NewOrderClient(cfg.CollaboratorBaseURL, cfg.CollaboratorTimeout)
	} else {
		zones, err := address.ParseZones(cfg.ServiceableZips)
		if err != nil {
			log.Fatal("invalid SERVICEABLE_ZIPS", zap.Error(err))
		}
		zoneValidator := address.NewZoneValidator(zones, cfg.MaxDeliveryKm)
		log.Info("delivery zones loaded", zap.Strings("zips", zoneValidator.Zips()))

		db, err = database.Open(&cfg.Postgres)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := database.RunMigrations(db, &cfg.Postgres); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		log.Info("database migrations completed")
		health["postgres"] = db.PingContext

		coupons := coupon.NewService(coupon.NewPostgresRepository(db), log.Named("coupon"))
		ordersRepo := orders.NewPostgresRepository(db)
		ordersService := orders.NewService(ordersRepo, cfg.IdempotencyWindow, log.Named("orders"))

		validator, couponSvc, orderSvc = zoneValidator, coupons, ordersService
		collab = collaboratorHandlers{
			address: h.NewAddressHandler(zoneValidator, cfg.CollaboratorTimeout),
			coupons: h.NewCouponHandler(coupons, cfg.CollaboratorTimeout),
			orders:  h.NewOrdersHandler(ordersService, cfg.CollaboratorTimeout),
		}

		// Outbox publisher
		poller = publisher.NewOutboxPoller(ordersRepo, log.Named("outbox"), cfg.KafkaBrokers...)
		var pollerCtx context.Context
		pollerCtx, pollerCancel = context.WithCancel(context.Background())
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(pollerCtx)
		}()
	}

	ctrl := checkout.NewController(checkout.Deps{
		Cart:   cartStore,
		States: states,
		Delivery: delivery.NewSelector(
			delivery.NewPickupStrategy(),
			delivery.NewHomeDeliveryStrategy(validator, cfg.DefaultDeliveryFee),
		),
		Pricing: pricing.NewVAT(cfg.VATRate),
		Coupons: couponSvc,
		Orders:  orderSvc,
		Bus:     bus,
	}, checkout.Config{
		Timeout:           cfg.CollaboratorTimeout,
		MaxSubmitAttempts: cfg.MaxSubmitAttempts,
		Location:          cfg.Timezone,
	}, log.Named("checkout"))

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		Menu:               h.NewMenuHandler(menu, cfg.RequestTimeout),
		Cart:               h.NewCartHandler(cartStore, cfg.RequestTimeout),
		Checkout:           h.NewCheckoutHandler(ctrl),
		Address:            collab.address,
		Coupons:            collab.coupons,
		Orders:             collab.orders,
		HealthChecks:       health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("checkout api listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	pollerCancel()
	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()
	select {
	case <-doneChan:
		log.Info("outbox poller stopped cleanly")
	case <-ctx.Done():
		log.Warn("outbox poller didn't stop in time")
	}
	if poller != nil {
		if err := poller.Close(); err != nil {
			log.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
	if mongoDB != nil {
		if err := mongoDB.Client().Disconnect(ctx); err != nil {
			log.Warn("failed to disconnect mongo", zap.Error(err))
		}
	}

	log.Info("server exited")
}

type collaboratorHandlers struct {
	address *h.AddressHandler
	coupons *h.CouponHandler
	orders  *h.OrdersHandler
}
