package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/vestcore/internal/auth"
	"github.com/terminal-bench/vestcore/internal/gateway"
	"github.com/terminal-bench/vestcore/internal/lifecycle"
	"github.com/terminal-bench/vestcore/internal/store"
	"github.com/terminal-bench/vestcore/internal/vesting"
	"github.com/terminal-bench/vestcore/pkg/messaging"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8004"
	}
	natsURL := os.Getenv("NATS_URL")
	dbURL := os.Getenv("DATABASE_URL")
	redisURL := os.Getenv("REDIS_URL")
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	var scheduleStore vesting.Store
	if dbURL != "" {
		db, err := sql.Open("postgres", dbURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		scheduleStore = store.NewPostgres(db)
	} else {
		log.Println("DATABASE_URL not set, using in-memory schedule store")
		scheduleStore = store.NewMemory()
	}

	if redisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisURL})
		scheduleStore = store.NewCache(scheduleStore, rdb, 5*time.Minute)
	}

	var events *messaging.Client
	var emitter vesting.Emitter = messaging.Noop{}
	if natsURL != "" {
		client, err := messaging.NewClient(messaging.Config{
			URL:           natsURL,
			Name:          "vestingd",
			ReconnectWait: time.Second,
			MaxReconnects: 5,
		})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer client.Close()
		events = client
		emitter = client
	}

	authSvc := auth.NewService(jwtSecret, 24*time.Hour)
	engine := vesting.NewEngine(vesting.Config{
		Store:  scheduleStore,
		Guard:  lifecycle.NewGuard(),
		Auth:   authSvc,
		Events: emitter,
	})

	gw := gateway.New(engine, authSvc, events)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: gw.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("vestingd listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("vestingd: %v", err)
	}
}
