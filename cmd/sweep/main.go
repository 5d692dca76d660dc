// One-shot sweep: resolve supersession and deliver due replies, then
// exit. Meant to be cron-driven alongside the long-running service; an
// empty backlog exits zero.
package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/companion-labs/companion-messaging/internal/client"
	"github.com/companion-labs/companion-messaging/internal/config"
	"github.com/companion-labs/companion-messaging/internal/dispatch"
	"github.com/companion-labs/companion-messaging/internal/repo"
	"github.com/companion-labs/companion-messaging/internal/resolver"
	"github.com/companion-labs/companion-messaging/internal/sweep"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadSweep()
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("postgres ping failed: %v", err)
	}

	store := repo.NewPostgresStore(db)
	twilio := client.NewTwilioClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
	dispatcher := dispatch.New(twilio, store, cfg.Twilio.SendTimeout)

	res, err := resolver.New(resolver.KeyMode(cfg.Sweep.GroupKey), store)
	if err != nil {
		log.Fatal(err)
	}

	sweeper, err := sweep.New(store, res, dispatcher, cfg.Sweep.BatchSize)
	if err != nil {
		log.Fatal(err)
	}

	stats, err := sweeper.Run(ctx)
	if err != nil {
		slog.Error("sweep failed", "error", err)
		os.Exit(1)
	}

	slog.Info("sweep finished",
		"due", stats.Due,
		"voided", stats.Voided,
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"deferred", stats.Deferred,
	)
}
