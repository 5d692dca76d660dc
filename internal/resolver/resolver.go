package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/companion-labs/companion-messaging/internal/model"
)

// KeyMode selects how pending replies are grouped for supersession.
// KeyRecipient gives a user at most one outstanding reply regardless of
// which companion number queued it; KeyRecipientSender keeps one per
// conversation line.
type KeyMode string

const (
	KeyRecipient       KeyMode = "recipient"
	KeyRecipientSender KeyMode = "recipient_sender"
)

type Voider interface {
	VoidReplies(ctx context.Context, ids []int64) (int64, error)
}

type Resolver struct {
	mode  KeyMode
	store Voider
}

func New(mode KeyMode, store Voider) (*Resolver, error) {
	switch mode {
	case KeyRecipient, KeyRecipientSender:
	default:
		return nil, fmt.Errorf("unknown group key mode: %q", mode)
	}
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	return &Resolver{mode: mode, store: store}, nil
}

func (r *Resolver) key(m model.PendingReply) string {
	if r.mode == KeyRecipientSender {
		return m.RecipientPhone + "\x00" + m.SenderPhone
	}
	return m.RecipientPhone
}

// Partition splits a batch of pending replies into the single winner per
// group key and the ids of everything that winner supersedes. The winner
// is the reply with the latest due time; ties go to the highest id, so
// the outcome is deterministic for any input order.
func (r *Resolver) Partition(batch []model.PendingReply) (winners []model.PendingReply, loserIDs []int64) {
	best := make(map[string]model.PendingReply, len(batch))
	for _, m := range batch {
		k := r.key(m)
		cur, ok := best[k]
		if !ok || m.DueAt.After(cur.DueAt) || (m.DueAt.Equal(cur.DueAt) && m.ID > cur.ID) {
			best[k] = m
		}
	}

	// Second pass keeps winner order aligned with the input batch.
	for _, m := range batch {
		if best[r.key(m)].ID == m.ID {
			winners = append(winners, m)
		} else {
			loserIDs = append(loserIDs, m.ID)
		}
	}
	return winners, loserIDs
}

// Resolve partitions the batch and voids the losers. The void update is
// conditional on rows still being pending, so two resolvers racing over
// the same batch cannot double-void or resurrect anything.
func (r *Resolver) Resolve(ctx context.Context, batch []model.PendingReply) ([]model.PendingReply, int64, error) {
	winners, loserIDs := r.Partition(batch)
	if len(loserIDs) == 0 {
		return winners, 0, nil
	}

	voided, err := r.store.VoidReplies(ctx, loserIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("void superseded replies: %w", err)
	}

	slog.Info("superseded older pending replies",
		"losers", len(loserIDs),
		"voided", voided,
		"winners", len(winners),
	)
	return winners, voided, nil
}
