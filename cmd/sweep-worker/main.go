package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	mongoadapter "github.com/unihub-exe/unihub-core/internal/adapters/mongo"
	"github.com/unihub-exe/unihub-core/internal/adapters/paystack"
	"github.com/unihub-exe/unihub-core/internal/adapters/pg"
	"github.com/unihub-exe/unihub-core/internal/config"
	"github.com/unihub-exe/unihub-core/internal/domain"
	"github.com/unihub-exe/unihub-core/internal/ledger"
	"github.com/unihub-exe/unihub-core/internal/observability"
	"github.com/unihub-exe/unihub-core/internal/outbox"
	"github.com/unihub-exe/unihub-core/internal/payout"
	"github.com/unihub-exe/unihub-core/internal/sweep"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := pg.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("unihub"), logger)

	gateway := paystack.NewClient(cfg.PaystackURL, cfg.PaystackKey, cfg.ProviderTimeout)
	notify := outbox.NewNotifier(repo, logger)

	ledgerStore := pg.NewLedgerStore(repo)
	payoutStore := pg.NewPayoutStore(repo)
	payoutSvc := payout.NewService(payoutStore, ledger.New(ledgerStore), gateway, notify, audit, logger, domain.Money(cfg.MinPayout))
	sweeper := sweep.New(ledgerStore, payoutStore, payoutSvc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runSweep(gctx, logger, time.Minute, "unlock", func(now time.Time) error {
			_, err := sweeper.UnlockEarnings(gctx, now)
			return err
		})
		return nil
	})
	g.Go(func() error {
		runSweep(gctx, logger, time.Minute, "payouts", func(now time.Time) error {
			_, err := sweeper.ProcessScheduledPayouts(gctx, now)
			return err
		})
		return nil
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
	g.Wait()
	logger.Info("Shutdown sweep worker")
}

// runSweep ticks the sweep on the interval, backing off exponentially on
// consecutive failures up to one minute.
func runSweep(ctx context.Context, logger observability.Logger, interval time.Duration, name string, fn func(now time.Time) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := fn(now); err != nil {
				logger.WithField("sweep", name).Error("sweep failed: ", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				if backoff < time.Minute {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second
		}
	}
}
