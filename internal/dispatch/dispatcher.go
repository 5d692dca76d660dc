package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/companion-labs/companion-messaging/internal/model"
)

type SendClient interface {
	Send(ctx context.Context, body, from, to string) (messageSID string, err error)
}

type DeliveryStore interface {
	MarkDelivered(ctx context.Context, id int64) (claimed bool, err error)
	InsertLogEntry(ctx context.Context, entry model.MessageLogEntry) error
}

// Dispatcher sends due replies and finalizes their records. The same
// Deliver path serves both the sweep and the inline timers; whichever
// caller claims the pending->delivered transition writes the log entry,
// the other sees claimed=false and stops.
type Dispatcher struct {
	client      SendClient
	store       DeliveryStore
	sendTimeout time.Duration

	onDelivered func(ctx context.Context, reply model.PendingReply, messageSID string) error
	onFailed    func(ctx context.Context, reply model.PendingReply, reason string) error
}

func New(client SendClient, store DeliveryStore, sendTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		client:      client,
		store:       store,
		sendTimeout: sendTimeout,
	}
}

func (d *Dispatcher) WithHooks(
	onDelivered func(ctx context.Context, reply model.PendingReply, messageSID string) error,
	onFailed func(ctx context.Context, reply model.PendingReply, reason string) error,
) *Dispatcher {
	d.onDelivered = onDelivered
	d.onFailed = onFailed
	return d
}

// ProcessBatch delivers each reply in turn. A failed send leaves that
// record pending for the next sweep and does not abort the batch.
func (d *Dispatcher) ProcessBatch(ctx context.Context, batch []model.PendingReply) (delivered, failed int) {
	for _, m := range batch {
		claimed, err := d.Deliver(ctx, m)
		if err != nil {
			failed++
			continue
		}
		if claimed {
			delivered++
		}
	}
	return delivered, failed
}

// Deliver sends one reply and conditionally marks it delivered. claimed
// is false without error when another path already finalized the record;
// no log entry is written in that case.
func (d *Dispatcher) Deliver(ctx context.Context, m model.PendingReply) (claimed bool, err error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	sid, err := d.client.Send(sendCtx, m.Body, m.SenderPhone, m.RecipientPhone)
	if err != nil {
		slog.Error("send failed, reply stays pending",
			"reply_id", m.ID,
			"recipient", m.RecipientPhone,
			"error", err,
		)
		d.fail(ctx, m, err.Error())
		return false, err
	}

	claimed, err = d.store.MarkDelivered(ctx, m.ID)
	if err != nil {
		return false, err
	}
	if !claimed {
		slog.Info("reply already finalized by another path", "reply_id", m.ID)
		return false, nil
	}

	if err := d.store.InsertLogEntry(ctx, model.MessageLogEntry{
		RecipientPhone: m.RecipientPhone,
		SenderPhone:    m.SenderPhone,
		Body:           m.Body,
		Direction:      model.DirectionOutbound,
		UserID:         m.UserID,
		NumberID:       m.NumberID,
	}); err != nil {
		// The reply is delivered; the log is diagnostic.
		slog.Error("failed to log outbound message", "reply_id", m.ID, "error", err)
	}

	slog.Info("reply delivered", "reply_id", m.ID, "recipient", m.RecipientPhone, "message_sid", sid)

	if d.onDelivered != nil {
		_ = d.onDelivered(ctx, m, sid)
	}
	return true, nil
}

func (d *Dispatcher) fail(ctx context.Context, m model.PendingReply, reason string) {
	if d.onFailed != nil {
		_ = d.onFailed(ctx, m, reason)
	}
}
