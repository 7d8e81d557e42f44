// Package cache keeps recently read wallets in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/richardliu001/marketplace-ledger/internal/model"
)

// ErrMiss is returned by Get when the wallet is not cached.
var ErrMiss = errors.New("cache miss")

// setIfNewer writes the snapshot only when the cached one is older. A reader
// holding a stale row therefore cannot overwrite what a writer stored.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'wallet', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// BalanceCache stores wallet snapshots under "balance:<user_id>" as a hash
// of the wallet version and its JSON.
type BalanceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewBalanceCache(rdb *redis.Client, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &BalanceCache{rdb: rdb, ttl: ttl}
}

func Key(userID uuid.UUID) string { return fmt.Sprintf("balance:%s", userID) }

// Get reads a cached wallet.
func (c *BalanceCache) Get(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	vals, err := c.rdb.HMGet(ctx, Key(userID), "version", "wallet").Result()
	if err != nil {
		return nil, err
	}
	ver, ok1 := vals[0].(string)
	raw, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return nil, ErrMiss
	}
	var w model.Wallet
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("decode cached wallet: %w", err)
	}
	if w.Version, err = strconv.ParseUint(ver, 10, 64); err != nil {
		return nil, fmt.Errorf("decode cached version: %w", err)
	}
	return &w, nil
}

// Set stores the snapshot unless a snapshot of the same or a later version
// is cached already. It reports whether the write happened.
func (c *BalanceCache) Set(ctx context.Context, w *model.Wallet) (bool, error) {
	raw, err := json.Marshal(w)
	if err != nil {
		return false, err
	}
	n, err := setIfNewer.Run(ctx, c.rdb, []string{Key(w.UserID)},
		w.Version, raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Invalidate drops the snapshots of the given users.
func (c *BalanceCache) Invalidate(ctx context.Context, userIDs ...uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, Key(id))
	}
	return c.rdb.Del(ctx, keys...).Err()
}
