package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/telecare/booking-engine/internal/appointment"
	"github.com/telecare/booking-engine/internal/billing"
	"github.com/telecare/booking-engine/internal/config"
	"github.com/telecare/booking-engine/internal/db"
	"github.com/telecare/booking-engine/internal/lock"
)

// how far back each reconcile run looks for completed-but-unbilled
// appointments
const reconcileWindowDays = 31

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("billing-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running billing worker in env=%s interval=%s mode=%s", cfg.Env, cfg.WorkerInterval, cfg.BillingMode)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := lock.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	mode, err := billing.ParseMode(cfg.BillingMode)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	apptRepo := appointment.NewPgRepository(pgPool)
	locker := lock.NewRedisLocker(rdb, cfg.LockTTL)
	aggregator := billing.NewAggregator(billing.NewPgRepository(pgPool), locker, billing.Config{
		RatePerAppointment: cfg.RatePerAppointment,
		Currency:           cfg.BillingCurrency,
		Mode:               mode,
	})

	// Run once at startup
	runOnce(rootCtx, aggregator, apptRepo)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping billing worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, aggregator, apptRepo)
		}
	}
}

func runOnce(ctx context.Context, aggregator *billing.Aggregator, appts appointment.Repository) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	now := time.Now()
	from := now.AddDate(0, 0, -reconcileWindowDays)

	start := time.Now()
	billed, err := aggregator.Reconcile(runCtx, appts, from, now)
	if err != nil {
		log.Printf("reconcile run error: %v", err)
		return
	}
	log.Printf("reconcile run complete in %s, billed=%d", time.Since(start), billed)
}
