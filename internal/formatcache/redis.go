package formatcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "tube-proxy:formats:"

// RedisStore shares probe results between instances. Keys expire after ttl.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient connects to addr and pings it once.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, utils.WrapError(utils.ErrExternalServiceError, "redis ping failed", map[string]any{
			"addr":  addr,
			"error": err.Error(),
		})
	}
	return client, nil
}

func redisKey(mediaID string) string {
	return redisKeyPrefix + mediaID
}

func (r *RedisStore) Get(ctx context.Context, mediaID string) (Entry, bool, error) {
	data, err := r.client.Get(ctx, redisKey(mediaID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (r *RedisStore) Set(ctx context.Context, mediaID string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKey(mediaID), data, r.ttl).Err()
}
