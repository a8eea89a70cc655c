package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultQueueKey is the Redis list the enrichment worker drains.
	DefaultQueueKey = "walletid:refresh:queue"

	claimKeyPrefix = "walletid:refresh:claim:"
)

// RedisQueue is a Redis list of wallets awaiting re-enrichment. Each wallet
// is claimed with SETNX before it is pushed so that a wallet is enqueued at
// most once per claim window, across ticks and across dispatchers.
type RedisQueue struct {
	client   redis.Cmdable
	key      string
	claimTTL time.Duration
}

// RedisQueueOption configures a RedisQueue instance.
type RedisQueueOption func(*RedisQueue)

func WithQueueKey(key string) RedisQueueOption {
	return func(q *RedisQueue) {
		if key != "" {
			q.key = key
		}
	}
}

func WithClaimTTL(ttl time.Duration) RedisQueueOption {
	return func(q *RedisQueue) {
		if ttl > 0 {
			q.claimTTL = ttl
		}
	}
}

func NewRedisQueue(client redis.Cmdable, opts ...RedisQueueOption) *RedisQueue {
	q := &RedisQueue{
		client:   client,
		key:      DefaultQueueKey,
		claimTTL: time.Hour,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Enqueue claims and pushes wallets, returning the ones actually enqueued.
// Wallets still claimed from an earlier call are skipped.
func (q *RedisQueue) Enqueue(ctx context.Context, wallets []string) ([]string, error) {
	if len(wallets) == 0 {
		return nil, nil
	}

	pipe := q.client.Pipeline()
	claims := make([]*redis.BoolCmd, len(wallets))
	for i, w := range wallets {
		claims[i] = pipe.SetNX(ctx, claimKeyPrefix+w, "1", q.claimTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("claim refresh wallets: %w", err)
	}

	claimed := make([]string, 0, len(wallets))
	for i, cmd := range claims {
		if cmd.Val() {
			claimed = append(claimed, wallets[i])
		}
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	values := make([]any, len(claimed))
	for i, w := range claimed {
		values[i] = w
	}
	if err := q.client.RPush(ctx, q.key, values...).Err(); err != nil {
		if relErr := q.release(context.WithoutCancel(ctx), claimed); relErr != nil {
			return nil, fmt.Errorf("push refresh wallets: %w", errors.Join(err, relErr))
		}
		return nil, fmt.Errorf("push refresh wallets: %w", err)
	}
	return claimed, nil
}

// release drops claims for wallets that never reached the list so the next
// tick can enqueue them again.
func (q *RedisQueue) release(ctx context.Context, wallets []string) error {
	keys := make([]string, len(wallets))
	for i, w := range wallets {
		keys[i] = claimKeyPrefix + w
	}
	if err := q.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("release refresh claims: %w", err)
	}
	return nil
}

// Pop removes up to n wallets from the head of the queue. The claim stays
// until it expires, so a popped wallet is not re-enqueued right away.
func (q *RedisQueue) Pop(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	wallets, err := q.client.LPopCount(ctx, q.key, n).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop refresh wallets: %w", err)
	}
	return wallets, nil
}

// Len reports the queue depth.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("refresh queue length: %w", err)
	}
	return n, nil
}
