package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusVoid      Status = "void"
	StatusDelivered Status = "delivered"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// PendingReply is a durable, not-yet-transmitted reply. Status void and
// delivered are terminal; every transition out of pending is conditional
// on the row still being pending.
type PendingReply struct {
	ID             int64
	RecipientPhone string
	SenderPhone    string
	UserID         int64
	NumberID       int64
	Body           string
	DueAt          time.Time
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeliveredAt    *time.Time
}

// MessageLogEntry is an append-only record of an actually-transmitted or
// actually-received message.
type MessageLogEntry struct {
	ID             int64
	RecipientPhone string
	SenderPhone    string
	Body           string
	Direction      Direction
	UserID         int64
	NumberID       int64
	CreatedAt      time.Time
}

// ChannelOwner identifies who a companion number belongs to.
type ChannelOwner struct {
	UserID   int64
	NumberID int64
}
