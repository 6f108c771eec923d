package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const deadLetterTTL = 7 * 24 * time.Hour

// DeadLetterEntry records one event whose handling failed, with enough
// context to replay it manually (re-run backfill around the signature).
type DeadLetterEntry struct {
	ID        string    `json:"id"`
	Signature string    `json:"signature"`
	EventName string    `json:"event_name"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}

// DeadLetterRepo keeps failed events in Redis: a sorted set ordered by
// failure time plus one JSON blob per entry. Entries expire after a
// week; by then a backfill run should have reconciled the store.
type DeadLetterRepo struct {
	rdb *redis.Client
}

// NewDeadLetterRepo creates a Redis-backed dead-letter repository.
func NewDeadLetterRepo(client *Client) *DeadLetterRepo {
	return &DeadLetterRepo{rdb: client.rdb}
}

func (r *DeadLetterRepo) queueKey() string {
	return "dead_letter:events"
}

func (r *DeadLetterRepo) entryKey(id string) string {
	return fmt.Sprintf("dead_letter:event:%s", id)
}

// Record stores a failed event.
func (r *DeadLetterRepo) Record(ctx context.Context, signature, eventName string, cause error) error {
	entry := DeadLetterEntry{
		ID:        uuid.NewString(),
		Signature: signature,
		EventName: eventName,
		Error:     cause.Error(),
		FailedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	if err := r.rdb.Set(ctx, r.entryKey(entry.ID), data, deadLetterTTL).Err(); err != nil {
		return fmt.Errorf("failed to set dead letter: %w", err)
	}

	if err := r.rdb.ZAdd(ctx, r.queueKey(), redis.Z{
		Score:  float64(entry.FailedAt.Unix()),
		Member: entry.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}

	return nil
}

// Pending returns up to limit entries, oldest first.
func (r *DeadLetterRepo) Pending(ctx context.Context, limit int) ([]DeadLetterEntry, error) {
	ids, err := r.rdb.ZRange(ctx, r.queueKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	var entries []DeadLetterEntry
	for _, id := range ids {
		data, err := r.rdb.Get(ctx, r.entryKey(id)).Bytes()
		if err == redis.Nil {
			// Blob expired but the id is still queued; drop it.
			r.rdb.ZRem(ctx, r.queueKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get dead letter %s: %w", id, err)
		}

		var entry DeadLetterEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead letter %s: %w", id, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Resolve removes an entry after manual replay.
func (r *DeadLetterRepo) Resolve(ctx context.Context, id string) error {
	if err := r.rdb.ZRem(ctx, r.queueKey(), id).Err(); err != nil {
		return err
	}
	return r.rdb.Del(ctx, r.entryKey(id)).Err()
}
