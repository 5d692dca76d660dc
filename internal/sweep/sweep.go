package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/companion-labs/companion-messaging/internal/dispatch"
	"github.com/companion-labs/companion-messaging/internal/model"
	"github.com/companion-labs/companion-messaging/internal/resolver"
)

type PendingSource interface {
	FetchDuePending(ctx context.Context, now time.Time, limit int) ([]model.PendingReply, error)
}

type Stats struct {
	Due       int   `json:"due"`
	Voided    int64 `json:"voided"`
	Delivered int   `json:"delivered"`
	Failed    int   `json:"failed"`
	Deferred  int   `json:"deferred"`
}

// Sweeper runs one fetch -> resolve -> dispatch pass over the due
// backlog. Safe to invoke repeatedly and concurrently: nothing here
// holds a lock, correctness comes from the store's conditional updates.
type Sweeper struct {
	store      PendingSource
	resolver   *resolver.Resolver
	dispatcher *dispatch.Dispatcher
	batchSize  int
}

func New(store PendingSource, res *resolver.Resolver, disp *dispatch.Dispatcher, batchSize int) (*Sweeper, error) {
	if store == nil || res == nil || disp == nil {
		return nil, errors.New("store, resolver and dispatcher must not be nil")
	}
	if batchSize <= 0 {
		return nil, errors.New("batchSize must be > 0")
	}
	return &Sweeper{
		store:      store,
		resolver:   res,
		dispatcher: disp,
		batchSize:  batchSize,
	}, nil
}

// Run executes a single sweep. An empty backlog is a normal outcome.
//
// Supersession is resolved over the entire due set: truncating the
// fetch could cut a recipient's replacement out of the batch while its
// superseded predecessor is fetched, and both would end up sent.
// batchSize caps only how many winners one run dispatches; the rest
// stay pending for the next sweep.
func (s *Sweeper) Run(ctx context.Context) (Stats, error) {
	now := time.Now().UTC()

	batch, err := s.store.FetchDuePending(ctx, now, 0)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch due pending replies: %w", err)
	}
	if len(batch) == 0 {
		slog.Info("sweep: no due replies")
		return Stats{}, nil
	}

	winners, voided, err := s.resolver.Resolve(ctx, batch)
	if err != nil {
		return Stats{Due: len(batch)}, err
	}

	deferred := 0
	if len(winners) > s.batchSize {
		deferred = len(winners) - s.batchSize
		winners = winners[:s.batchSize]
	}

	delivered, failed := s.dispatcher.ProcessBatch(ctx, winners)

	stats := Stats{
		Due:       len(batch),
		Voided:    voided,
		Delivered: delivered,
		Failed:    failed,
		Deferred:  deferred,
	}
	slog.Info("sweep completed",
		"due", stats.Due,
		"voided", stats.Voided,
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"deferred", stats.Deferred,
	)
	return stats, nil
}
