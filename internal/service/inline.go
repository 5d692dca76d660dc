package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/companion-labs/companion-messaging/internal/model"
	"github.com/companion-labs/companion-messaging/internal/repo"
)

type Generator interface {
	Generate(ctx context.Context, inbound string) (string, error)
}

type Timers interface {
	Cancel(sender string) bool
	Arm(sender string, reply model.PendingReply, inboundBody string, delay time.Duration)
}

type InboundStore interface {
	repo.ChannelRepository
	InsertLogEntry(ctx context.Context, entry model.MessageLogEntry) error
	InsertPending(ctx context.Context, reply model.PendingReply) (int64, error)
}

// Inline is the event-driven scheduling path: each inbound turn cancels
// the sender's local timer, queues a fresh pending reply with a
// randomized due time, and arms a new timer so delivery does not have to
// wait for the next sweep.
type Inline struct {
	store  InboundStore
	gen    Generator
	timers Timers

	delayMin   time.Duration
	delayMax   time.Duration
	genTimeout time.Duration
}

func NewInline(store InboundStore, gen Generator, timers Timers, delayMin, delayMax, genTimeout time.Duration) (*Inline, error) {
	if store == nil || gen == nil || timers == nil {
		return nil, errors.New("store, generator and timers must not be nil")
	}
	if delayMin <= 0 || delayMax < delayMin {
		return nil, errors.New("invalid reply delay window")
	}
	if genTimeout <= 0 {
		return nil, errors.New("genTimeout must be > 0")
	}
	return &Inline{
		store:      store,
		gen:        gen,
		timers:     timers,
		delayMin:   delayMin,
		delayMax:   delayMax,
		genTimeout: genTimeout,
	}, nil
}

// HandleInbound processes one conversational turn. A nil return means
// the webhook should acknowledge with an empty body; that includes the
// unknown-channel case, which writes nothing durable. A non-nil error
// means an internal failure the caller should surface as a 500.
func (s *Inline) HandleInbound(ctx context.Context, body, from, to string) error {
	if cancelled := s.timers.Cancel(from); cancelled {
		slog.Info("cancelled armed reply timer", "sender", from)
	}

	owner, err := s.store.ResolveChannelOwner(ctx, to)
	if errors.Is(err, repo.ErrChannelNotFound) {
		slog.Warn("inbound for unknown companion number, acknowledging without action", "to", to)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve channel owner: %w", err)
	}

	if err := s.store.InsertLogEntry(ctx, model.MessageLogEntry{
		RecipientPhone: to,
		SenderPhone:    from,
		Body:           body,
		Direction:      model.DirectionInbound,
		UserID:         owner.UserID,
		NumberID:       owner.NumberID,
	}); err != nil {
		return fmt.Errorf("log inbound message: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	replyText, err := s.gen.Generate(genCtx, body)
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	delay := s.replyDelay()
	reply := model.PendingReply{
		RecipientPhone: from,
		SenderPhone:    to,
		UserID:         owner.UserID,
		NumberID:       owner.NumberID,
		Body:           replyText,
		DueAt:          time.Now().UTC().Add(delay),
		Status:         model.StatusPending,
	}

	id, err := s.store.InsertPending(ctx, reply)
	if err != nil {
		return fmt.Errorf("persist pending reply: %w", err)
	}
	reply.ID = id

	s.timers.Arm(from, reply, body, delay)

	slog.Info("reply scheduled",
		"reply_id", id,
		"recipient", from,
		"delay_minutes", int(delay.Minutes()),
	)
	return nil
}

func (s *Inline) replyDelay() time.Duration {
	if s.delayMax == s.delayMin {
		return s.delayMin
	}
	return s.delayMin + rand.N(s.delayMax-s.delayMin+1)
}
