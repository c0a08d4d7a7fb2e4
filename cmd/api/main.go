package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/unihub-exe/unihub-core/internal/adapters/mongo"
	"github.com/unihub-exe/unihub-core/internal/adapters/paystack"
	"github.com/unihub-exe/unihub-core/internal/adapters/pg"
	redisadapter "github.com/unihub-exe/unihub-core/internal/adapters/redis"
	"github.com/unihub-exe/unihub-core/internal/config"
	"github.com/unihub-exe/unihub-core/internal/domain"
	httphandler "github.com/unihub-exe/unihub-core/internal/http"
	"github.com/unihub-exe/unihub-core/internal/ledger"
	"github.com/unihub-exe/unihub-core/internal/observability"
	"github.com/unihub-exe/unihub-core/internal/outbox"
	"github.com/unihub-exe/unihub-core/internal/payout"
	"github.com/unihub-exe/unihub-core/internal/ratelimit"
	"github.com/unihub-exe/unihub-core/internal/registration"
	"github.com/unihub-exe/unihub-core/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := pg.NewRepository(pool)
	if err := repo.Migrate(context.Background()); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("unihub"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	refs := redisadapter.NewRefChecker(redisCache)
	rl := ratelimit.NewRateLimiter(redisCache)

	gateway := paystack.NewClient(cfg.PaystackURL, cfg.PaystackKey, cfg.ProviderTimeout)
	notify := outbox.NewNotifier(repo, logger)

	ledgerEngine := ledger.New(pg.NewLedgerStore(repo))
	eventStore := pg.NewEventStore(repo)
	regSvc := registration.NewService(eventStore, notify, logger, cfg.SoldGates)
	settleSvc := settlement.NewService(ledgerEngine, regSvc, eventStore, gateway, refs, audit, notify, logger, cfg.EarningsLock)
	payoutSvc := payout.NewService(pg.NewPayoutStore(repo), ledgerEngine, gateway, notify, audit, logger, domain.Money(cfg.MinPayout))

	handlers := httphandler.NewHandlers(cfg, settleSvc, regSvc, ledgerEngine, payoutSvc, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
