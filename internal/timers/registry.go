package timers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/companion-labs/companion-messaging/internal/model"
)

// Registry owns the process-local countdown timers, one per sender
// phone. A timer is a latency optimization only: the durable pending
// reply stays authoritative, and the fire callback goes through the same
// conditional delivery path as the sweep. Handles never outlive the
// process.
type Registry struct {
	fire func(ctx context.Context, reply model.PendingReply)

	mu    sync.Mutex
	armed map[string]*handle
}

type handle struct {
	timer       *time.Timer
	reply       model.PendingReply
	inboundBody string
}

func NewRegistry(fire func(ctx context.Context, reply model.PendingReply)) *Registry {
	return &Registry{
		fire:  fire,
		armed: make(map[string]*handle),
	}
}

// Arm schedules a local delivery attempt for the given reply. Any timer
// already armed for the sender is cancelled first. The handle clears
// itself when the timer fires, whatever the delivery outcome.
func (r *Registry) Arm(sender string, reply model.PendingReply, inboundBody string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.armed[sender]; ok {
		old.timer.Stop()
	}

	h := &handle{reply: reply, inboundBody: inboundBody}
	h.timer = time.AfterFunc(delay, func() {
		defer r.release(sender, h)
		r.fire(context.Background(), reply)
	})
	r.armed[sender] = h
}

// Cancel stops and removes the sender's timer if one is armed. This is
// local and best-effort; it never voids the durable record.
func (r *Registry) Cancel(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.armed[sender]
	if !ok {
		return false
	}
	h.timer.Stop()
	delete(r.armed, sender)
	return true
}

// Armed reports whether a timer is currently held for the sender.
func (r *Registry) Armed(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.armed[sender]
	return ok
}

// Stop cancels every armed timer. Called on shutdown; the sweep picks up
// whatever the timers would have delivered.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sender, h := range r.armed {
		h.timer.Stop()
		delete(r.armed, sender)
	}
	slog.Info("timer registry stopped")
}

// release removes the handle after its timer fired, but only if it has
// not been superseded by a newer one for the same sender.
func (r *Registry) release(sender string, h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.armed[sender]; ok && cur == h {
		delete(r.armed, sender)
	}
}
