package cache

import (
	"context"
	"time"
)

type ReceiptCache interface {
	StoreDelivered(ctx context.Context, recipient, messageSID string, deliveredAt time.Time) error
}
