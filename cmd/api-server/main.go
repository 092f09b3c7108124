package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/api"
	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/appointment"
	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/config"
	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/db"
	redisclient "github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/redis"
	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/token"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s clinic_tz=%s", cfg.Env, cfg.HTTPPort, cfg.ClinicLocation)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisDoctorDayLocker(rdb, cfg.LockTTL)
	queue := token.NewManager(repo, cfg.ClinicLocation)
	svc := appointment.NewService(repo, locker, queue, cfg)

	// Warm the token counters before taking traffic.
	warmCtx, cancelWarm := context.WithTimeout(rootCtx, 30*time.Second)
	if err := queue.EnsureFresh(warmCtx); err != nil {
		log.Printf("token counter warm-up failed, will retry lazily: %v", err)
	}
	cancelWarm()

	handler := api.NewRouter(api.RouterConfig{
		Service: svc,
		Queue:   queue,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
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
