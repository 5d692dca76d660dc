package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/companion-labs/companion-messaging/internal/api"
	"github.com/companion-labs/companion-messaging/internal/cache"
	"github.com/companion-labs/companion-messaging/internal/client"
	"github.com/companion-labs/companion-messaging/internal/config"
	"github.com/companion-labs/companion-messaging/internal/dispatch"
	"github.com/companion-labs/companion-messaging/internal/genai"
	"github.com/companion-labs/companion-messaging/internal/model"
	"github.com/companion-labs/companion-messaging/internal/repo"
	"github.com/companion-labs/companion-messaging/internal/resolver"
	"github.com/companion-labs/companion-messaging/internal/scheduler"
	"github.com/companion-labs/companion-messaging/internal/service"
	"github.com/companion-labs/companion-messaging/internal/sweep"
	"github.com/companion-labs/companion-messaging/internal/timers"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	slog.Info("companion-messaging starting",
		"addr", cfg.Server.Address,
		"sweep_interval", cfg.Sweep.Interval.String(),
		"batch", cfg.Sweep.BatchSize,
		"group_key", cfg.Sweep.GroupKey,
		"redis", cfg.Redis.Enabled,
	)

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("postgres ping failed: %v", err)
	}
	cancelPing()

	store := repo.NewPostgresStore(db)

	var receipts cache.ReceiptCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		receipts = cache.NewRedisReceipts(rdb, cfg.Redis.TTL)
	}

	gen, err := genai.New(genai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
		Persona: cfg.OpenAI.Persona,
	})
	if err != nil {
		log.Fatal(err)
	}

	twilio := client.NewTwilioClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)

	dispatcher := dispatch.New(twilio, store, cfg.Twilio.SendTimeout)
	dispatcher.WithHooks(
		func(ctx context.Context, reply model.PendingReply, sid string) error {
			if receipts == nil {
				return nil
			}
			if err := receipts.StoreDelivered(ctx, reply.RecipientPhone, sid, time.Now()); err != nil {
				slog.Warn("failed to cache delivery receipt", "recipient", reply.RecipientPhone, "error", err)
			}
			return nil
		},
		func(ctx context.Context, reply model.PendingReply, reason string) error {
			slog.Warn("delivery failed, will retry on next sweep", "reply_id", reply.ID, "reason", reason)
			return nil
		},
	)

	res, err := resolver.New(resolver.KeyMode(cfg.Sweep.GroupKey), store)
	if err != nil {
		log.Fatal(err)
	}

	sweeper, err := sweep.New(store, res, dispatcher, cfg.Sweep.BatchSize)
	if err != nil {
		log.Fatal(err)
	}

	registry := timers.NewRegistry(func(ctx context.Context, reply model.PendingReply) {
		if _, err := dispatcher.Deliver(ctx, reply); err != nil {
			slog.Warn("inline delivery failed, sweep will retry", "reply_id", reply.ID, "error", err)
		}
	})

	inline, err := service.NewInline(store, gen, registry,
		cfg.Delay.Min, cfg.Delay.Max, cfg.OpenAI.GenerateTimeout)
	if err != nil {
		log.Fatal(err)
	}

	sched, err := scheduler.New(cfg.Sweep.Interval, func(ctx context.Context) error {
		_, err := sweeper.Run(ctx)
		return err
	})
	if err != nil {
		log.Fatal(err)
	}
	sched.Start()

	handler := api.NewHandler(inline, sweeper, sched, store)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(handler)),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}

	sched.Stop()
	registry.Stop()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("request",
			"request_id", uuid.NewString(),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
