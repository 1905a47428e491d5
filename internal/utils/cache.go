package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"errors"        // Sentinel comparison
	"strings"       // Event code normalization
	"time"          // Time durations

	"github.com/google/uuid"       // Lock tokens
	"github.com/redis/go-redis/v9" // Redis client
)

// Cache key builders; every cached read in the API goes through one of these
func WalletKey(userID string) string       { return "wallet:user:" + userID }
func TxHistoryPrefix(userID string) string { return "txhistory:user:" + userID + ":" }
func EventKey(code string) string          { return "event:" + strings.ToUpper(strings.TrimSpace(code)) }

// Admin listing prefixes; any wallet or ledger write drops both
const (
	AdminTxPrefix    = "admin:txs:"
	AdminUsersPrefix = "admin:users:"
)

// GetCache retrieves a value from Redis and unmarshals it into dest. A nil
// client behaves as a cache miss.
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil // Caching disabled
	}
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if errors.Is(err, redis.Nil) {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	if rdb == nil {
		return nil
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes keys from Redis
func DeleteCache(ctx context.Context, rdb *redis.Client, keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil
	}
	return rdb.Del(ctx, keys...).Err() // Delete keys from Redis
}

// DeleteCachePrefix deletes every key starting with prefix, e.g. all cached
// pages of one user's history
func DeleteCachePrefix(ctx context.Context, rdb *redis.Client, prefix string) error {
	if rdb == nil {
		return nil
	}
	iter := rdb.Scan(ctx, 0, prefix+"*", 100).Iterator() // Non-blocking SCAN instead of KEYS
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return DeleteCache(ctx, rdb, keys...)
}

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a SET NX lock with expiry, one token per process
type RedisLocker struct {
	rdb   *redis.Client
	token string
}

// NewRedisLocker returns a locker on rdb
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, token: uuid.NewString()}
}

// Acquire takes key for ttl; false means another holder has it
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, l.token, ttl).Result()
}

// Release drops key if this locker still holds it
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.rdb, []string{key}, l.token).Err()
}
