package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/mamadbah2/rabbitry/internal/calendar"
)

const (
	quotaKeyPrefix = "rabbitry:notify"
	// keys outlive the farm-local day they count, whatever the zone offset
	quotaTTL = 48 * time.Hour
)

// Quota caps the notifications sent per farm and farm-local day. A nil
// *Quota, a nil client or a zero limit never limits.
type Quota struct {
	client *redis.Client
	limit  int
	logger *zap.Logger
}

// NewQuota returns a quota counting in client.
func NewQuota(client *redis.Client, limit int, logger *zap.Logger) *Quota {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Quota{client: client, limit: limit, logger: logger}
}

func quotaKey(farmID string, day calendar.Date) string {
	return fmt.Sprintf("%s:%s:%s", quotaKeyPrefix, farmID, day)
}

func (q *Quota) disabled() bool {
	return q == nil || q.client == nil || q.limit <= 0
}

// Take reserves one notification slot, returning ErrLimitReached once the
// day's budget is spent.
func (q *Quota) Take(ctx context.Context, farmID string, day calendar.Date) error {
	if q.disabled() {
		return nil
	}

	key := quotaKey(farmID, day)

	// INCR and EXPIRE run in one MULTI/EXEC
	var incr *redis.IntCmd
	if _, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, quotaTTL)
		return nil
	}); err != nil {
		return fmt.Errorf("increment quota %s: %v: %w", key, err, ErrTransient)
	}

	if incr.Val() > int64(q.limit) {
		if err := q.client.Decr(ctx, key).Err(); err != nil {
			q.logger.Warn("failed to roll back over-limit quota slot",
				zap.String("key", key), zap.Error(err))
		}
		return fmt.Errorf("farm %s on %s: %w", farmID, day, ErrLimitReached)
	}
	return nil
}

// Refund returns a slot taken for a notification that was not delivered.
func (q *Quota) Refund(ctx context.Context, farmID string, day calendar.Date) error {
	if q.disabled() {
		return nil
	}
	key := quotaKey(farmID, day)
	if err := q.client.Decr(ctx, key).Err(); err != nil {
		return fmt.Errorf("refund quota %s: %w", key, err)
	}
	return nil
}

// Used returns the number of slots consumed for the day.
func (q *Quota) Used(ctx context.Context, farmID string, day calendar.Date) (int, error) {
	if q.disabled() {
		return 0, nil
	}
	n, err := q.client.Get(ctx, quotaKey(farmID, day)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	return n, nil
}
