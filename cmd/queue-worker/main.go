package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/appointment"
	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/config"
	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/db"
	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/token"
)

// The queue worker keeps the token counter cache warm across the midnight
// rollover so the rebuild scan does not land on the first booking of the
// morning. The rebuild is idempotent cache warming; running it here and
// lazily in the manager is safe.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("queue-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running queue worker in env=%s interval=%s", cfg.Env, cfg.WorkerInterval)

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

	repo := appointment.NewPgRepository(pgPool)
	queue := token.NewManager(repo, cfg.ClinicLocation)

	// Run once at startup
	runOnce(rootCtx, queue)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping queue worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, queue)
		}
	}
}

func runOnce(ctx context.Context, queue *token.Manager) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := queue.EnsureFresh(runCtx); err != nil {
		log.Printf("counter warm run error: %v", err)
		return
	}
	log.Printf("counter warm run complete in %s", time.Since(start))
}
