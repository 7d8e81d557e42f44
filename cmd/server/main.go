package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/richardliu001/marketplace-ledger/internal/cache"
	"github.com/richardliu001/marketplace-ledger/internal/config"
	"github.com/richardliu001/marketplace-ledger/internal/logger"
	"github.com/richardliu001/marketplace-ledger/internal/model"
	"github.com/richardliu001/marketplace-ledger/internal/repo"
	"github.com/richardliu001/marketplace-ledger/internal/repo/memstore"
	"github.com/richardliu001/marketplace-ledger/internal/service"
	httptransport "github.com/richardliu001/marketplace-ledger/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "internal/config/config.yaml"
}

func main() {
	// 1. load config
	cfg, err := config.Load(configPath())
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. storage
	var (
		wallets repo.WalletStore
		txs     repo.TransactionStore
		carts   repo.CartStore
		bc      *cache.BalanceCache
	)
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		wallets, txs, carts = memstore.NewWallets(), memstore.NewTransactions(), memstore.NewCart()
		log.Warn("using in-memory storage, data is lost on exit")
	default:
		gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		if err := gdb.AutoMigrate(model.All()...); err != nil {
			log.Fatalf("auto-migrate: %v", err)
		}

		// 4. redis
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		bc = cache.NewBalanceCache(rdb, cfg.Redis.BalanceTTL)

		wallets = repo.NewWalletRepo(gdb, bc, log)
		txs = repo.NewTransactionRepo(gdb, log)
		carts = repo.NewCartRepo(gdb)
	}

	// 5. services
	engine := service.NewSettlementEngine(wallets, txs, log)
	svc := httptransport.Services{
		Wallets: service.NewWalletService(wallets, txs, bc, log),
		Orders:  service.NewOrderService(txs, engine),
		Carts:   service.NewCartService(carts),
	}

	// 6. gin router
	router := httptransport.NewRouter(svc, cfg.RateLimit, log)

	// 7. serve until interrupted
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Infof("marketplace-ledger listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	log.Info("marketplace-ledger stopped")
}
