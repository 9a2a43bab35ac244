package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	dlqKey        = "fleet:notifications:dlq"
	dlqMetaPrefix = "fleet:notifications:dlq:meta:"
)

// DeadLetter captures notifications that could not be delivered so an
// operator can replay or inspect them. Delivery failures never block the
// lifecycle operation that triggered the notification.
type DeadLetter struct {
	client *redis.Client
}

// DeadNotification is one undeliverable notification.
type DeadNotification struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Severity    string    `json:"severity"`
	FailureTime time.Time `json:"failure_time"`
	Reason      string    `json:"reason"`
}

func NewDeadLetter(client *redis.Client) *DeadLetter {
	return &DeadLetter{client: client}
}

// Add records an undeliverable notification.
func (dlq *DeadLetter) Add(ctx context.Context, n DeadNotification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.FailureTime.IsZero() {
		n.FailureTime = time.Now()
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal dead notification: %w", err)
	}

	// Sorted set keyed by failure time, metadata alongside.
	score := float64(n.FailureTime.Unix())
	if err := dlq.client.ZAdd(ctx, dlqKey, redis.Z{
		Score:  score,
		Member: n.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter set: %w", err)
	}

	metaKey := dlqMetaPrefix + n.ID
	if err := dlq.client.Set(ctx, metaKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store dead letter metadata: %w", err)
	}

	return nil
}

// List returns the oldest undelivered notifications, up to limit.
func (dlq *DeadLetter) List(ctx context.Context, limit int64) ([]DeadNotification, error) {
	ids, err := dlq.client.ZRange(ctx, dlqKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter set: %w", err)
	}

	out := make([]DeadNotification, 0, len(ids))
	for _, id := range ids {
		data, err := dlq.client.Get(ctx, dlqMetaPrefix+id).Bytes()
		if err != nil {
			continue
		}
		var n DeadNotification
		if err := json.Unmarshal(data, &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Remove drops one entry after an operator has handled it.
func (dlq *DeadLetter) Remove(ctx context.Context, id string) error {
	if err := dlq.client.ZRem(ctx, dlqKey, id).Err(); err != nil {
		return err
	}
	return dlq.client.Del(ctx, dlqMetaPrefix+id).Err()
}
