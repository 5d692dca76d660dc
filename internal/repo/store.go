package repo

import (
	"context"
	"errors"
	"time"

	"github.com/companion-labs/companion-messaging/internal/model"
)

// ErrChannelNotFound is returned when an inbound number does not map to
// any active companion number.
var ErrChannelNotFound = errors.New("channel endpoint not found")

type PendingRepository interface {
	// FetchDuePending returns pending replies with due_at <= now,
	// oldest due first. limit <= 0 returns the whole due set; callers
	// resolving supersession must not truncate here, or a superseded
	// reply can be fetched while its replacement is cut off.
	FetchDuePending(ctx context.Context, now time.Time, limit int) ([]model.PendingReply, error)

	// VoidReplies transitions the given ids to void in one statement.
	// Only rows still pending are affected; returns how many were.
	VoidReplies(ctx context.Context, ids []int64) (int64, error)

	// MarkDelivered transitions a reply to delivered only if it is still
	// pending. claimed reports whether this caller won the transition.
	MarkDelivered(ctx context.Context, id int64) (claimed bool, err error)

	InsertPending(ctx context.Context, reply model.PendingReply) (int64, error)
}

type LogRepository interface {
	InsertLogEntry(ctx context.Context, entry model.MessageLogEntry) error

	// ListLog returns log entries newest first. An empty direction
	// matches both directions.
	ListLog(ctx context.Context, direction model.Direction, limit, offset int) ([]model.MessageLogEntry, error)
}

type ChannelRepository interface {
	ResolveChannelOwner(ctx context.Context, endpoint string) (model.ChannelOwner, error)
}

type Store interface {
	PendingRepository
	LogRepository
	ChannelRepository
}
