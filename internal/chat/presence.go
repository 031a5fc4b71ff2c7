package chat

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	presencePrefix = "chat:presence:"
	// PresenceTTL is how long a viewer counts as active after their last join or poll.
	PresenceTTL = 60 * time.Second
)

// RedisPresence tracks active chat users per event in a sorted set scored by last-seen time.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisPresence creates a presence tracker. ttl <= 0 uses PresenceTTL.
func NewRedisPresence(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisPresence {
	if ttl <= 0 {
		ttl = PresenceTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPresence{client: client, ttl: ttl, logger: logger}
}

func presenceKey(eventID uuid.UUID) string {
	return presencePrefix + eventID.String()
}

// Touch marks userID active now and returns the active count.
func (p *RedisPresence) Touch(ctx context.Context, eventID, userID uuid.UUID) (int, error) {
	key := presenceKey(eventID)
	now := time.Now()
	pipe := p.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: userID.String()})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(now.Add(-p.ttl).Unix(), 10))
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, 2*p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

// Leave drops userID and returns the remaining active count.
func (p *RedisPresence) Leave(ctx context.Context, eventID, userID uuid.UUID) (int, error) {
	key := presenceKey(eventID)
	if err := p.client.ZRem(ctx, key, userID.String()).Err(); err != nil {
		return 0, err
	}
	return p.Count(ctx, eventID)
}

// Count returns users seen within the TTL.
func (p *RedisPresence) Count(ctx context.Context, eventID uuid.UUID) (int, error) {
	since := strconv.FormatInt(time.Now().Add(-p.ttl).Unix(), 10)
	n, err := p.client.ZCount(ctx, presenceKey(eventID), since, "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
