package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/telecare/booking-engine/internal/api"
	"github.com/telecare/booking-engine/internal/appointment"
	"github.com/telecare/booking-engine/internal/billing"
	"github.com/telecare/booking-engine/internal/config"
	"github.com/telecare/booking-engine/internal/db"
	"github.com/telecare/booking-engine/internal/lock"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s store=%s http_port=%s", cfg.Env, cfg.Store, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		pgPool      *pgxpool.Pool
		rdb         *goredis.Client
		apptRepo    appointment.Repository
		billingRepo billing.Repository
		locker      lock.Locker
	)

	switch cfg.Store {
	case config.StorePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			log.Fatalf("postgres connection error: %v", err)
		}
		defer pgPool.Close()
		log.Println("connected to Postgres")

		rdb, err = lock.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("redis connection error: %v", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Printf("error closing redis: %v", err)
			}
		}()
		log.Println("connected to Redis")

		apptRepo = appointment.NewPgRepository(pgPool)
		billingRepo = billing.NewPgRepository(pgPool)
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL)

	case config.StoreMemory:
		log.Println("using in-memory stores, data will not survive restart")
		apptRepo = appointment.NewMemoryRepository()
		billingRepo = billing.NewMemoryRepository()
		locker = lock.NewLocalLocker()
	}

	mode, err := billing.ParseMode(cfg.BillingMode)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	aggregator := billing.NewAggregator(billingRepo, locker, billing.Config{
		RatePerAppointment: cfg.RatePerAppointment,
		Currency:           cfg.BillingCurrency,
		Mode:               mode,
	})

	policies := appointment.StaticPolicy{Policy: cfg.WorkingHours}
	appointments := appointment.NewService(apptRepo, locker, policies, aggregator)

	router := api.NewRouter(api.RouterConfig{
		Appointments: appointments,
		Billing:      aggregator,
		PgPool:       pgPool,
		Redis:        rdb,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
