// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package txcache provides a Redis-backed ledger.Source that remembers the
// transactions it has already fetched for an account.
//
// For every account three keys are kept under the configured prefix:
//
//	<prefix><account>:idx     sorted set, member = tx hash, score = ledger index
//	<prefix><account>:tx      hash, tx hash -> raw transaction JSON
//	<prefix><account>:range   hash with "floor" and "synced": the ledger range
//	                          that is known to be complete in the cache
//
// A read whose lower bound falls inside the complete range is served from
// Redis up to "synced" and continues upstream from there. Everything read
// upstream is written through. The range only grows when an upstream
// enumeration ran to its end, so an abandoned or failed read never leaves a
// gap behind. Redis failures fall back to reading upstream.
package txcache

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/postfiatorg/postfiat-wallet/pkg/ledger"
	"github.com/postfiatorg/postfiat-wallet/pkg/logger"
)

// DefaultKeyPrefix namespaces the cache keys.
const DefaultKeyPrefix = "pftwallet:txcache:"

// DefaultTTL is how long an account's cache entries live after the last write.
const DefaultTTL = 24 * time.Hour

// Default timeouts for Redis connections.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

const (
	fieldFloor  = "floor"
	fieldSynced = "synced"
)

// Config holds Redis connection settings.
type Config struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// Cache is a caching ledger.Source in front of an upstream ledger.Pager.
type Cache struct {
	client    redis.UniversalClient
	upstream  ledger.Pager
	keyPrefix string
	ttl       time.Duration
}

var (
	_ ledger.Source      = (*Cache)(nil)
	_ ledger.Invalidator = (*Cache)(nil)
)

// New connects to Redis and returns a cache in front of upstream.
func New(ctx context.Context, cfg Config, upstream ledger.Pager) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, upstream, cfg.KeyPrefix, cfg.TTL), nil
}

// NewWithClient creates a cache with a pre-configured client.
// This is useful for testing with miniredis.
func NewWithClient(client redis.UniversalClient, upstream ledger.Pager, keyPrefix string, ttl time.Duration) *Cache {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		client:    client,
		upstream:  upstream,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) indexKey(account string) string { return c.keyPrefix + account + ":idx" }
func (c *Cache) bodyKey(account string) string  { return c.keyPrefix + account + ":tx" }
func (c *Cache) rangeKey(account string) string { return c.keyPrefix + account + ":range" }

// coverage is the complete ledger range held for an account.
type coverage struct {
	floor  int64
	synced int64
}

// serves reports whether a read starting at from can begin in the cache.
func (cv coverage) serves(from int64) bool {
	return from >= cv.floor && from <= cv.synced+1
}

func (c *Cache) loadCoverage(ctx context.Context, account string) (coverage, bool, error) {
	vals, err := c.client.HMGet(ctx, c.rangeKey(account), fieldFloor, fieldSynced).Result()
	if err != nil {
		return coverage{}, false, err
	}
	floor, okFloor := parseInt(vals[0])
	synced, okSynced := parseInt(vals[1])
	if !okFloor || !okSynced {
		return coverage{}, false, nil
	}
	return coverage{floor: floor, synced: synced}, true, nil
}

func parseInt(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// Transactions implements ledger.Source.
func (c *Cache) Transactions(ctx context.Context, account string, from, to int64) iter.Seq2[*ledger.Transaction, error] {
	return func(yield func(*ledger.Transaction, error) bool) {
		cv, ok, err := c.loadCoverage(ctx, account)
		if err != nil {
			logger.Warnw("Transaction cache unavailable, reading upstream", "account", account, "error", err)
			c.passthrough(ctx, account, from, to, yield)
			return
		}

		start := from
		var prev *coverage
		if ok {
			prev = &cv
		}
		if ok && cv.serves(from) {
			upper := cv.synced
			if to != ledger.LatestLedger && to < upper {
				upper = to
			}
			cached, err := c.loadRange(ctx, account, from, upper)
			if err != nil {
				logger.Warnw("Failed to read cached transactions, reading upstream", "account", account, "error", err)
				c.passthrough(ctx, account, from, to, yield)
				return
			}
			for _, tx := range cached {
				if !yield(tx, nil) {
					return
				}
			}
			if to != ledger.LatestLedger && to <= cv.synced {
				return
			}
			start = cv.synced + 1
		}

		c.readThrough(ctx, account, start, to, prev, yield)
	}
}

// loadRange returns the cached transactions with ledger index in [from, to],
// ascending.
func (c *Cache) loadRange(ctx context.Context, account string, from, to int64) ([]*ledger.Transaction, error) {
	if to < from {
		return nil, nil
	}
	hashes, err := c.client.ZRangeByScore(ctx, c.indexKey(account), &redis.ZRangeBy{
		Min: strconv.FormatInt(from, 10),
		Max: strconv.FormatInt(to, 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, nil
	}
	bodies, err := c.client.HMGet(ctx, c.bodyKey(account), hashes...).Result()
	if err != nil {
		return nil, err
	}

	txns := make([]*ledger.Transaction, 0, len(bodies))
	for i, body := range bodies {
		raw, ok := body.(string)
		if !ok {
			return nil, fmt.Errorf("cached transaction %s has no body", hashes[i])
		}
		tx, err := ledger.ParseTransaction([]byte(raw))
		if err != nil {
			return nil, err
		}
		txns = append(txns, tx)
	}
	return txns, nil
}

// readThrough enumerates upstream from start, writing every page to Redis.
// When the enumeration completes, [start, last searched ledger] is merged
// into the recorded coverage.
func (c *Cache) readThrough(
	ctx context.Context, account string, start, to int64, prev *coverage, yield func(*ledger.Transaction, error) bool,
) {
	var (
		marker    json.RawMessage
		maxLedger int64
		cacheOK   = true
	)
	for {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		page, err := c.upstream.AccountTxPage(ctx, account, start, to, marker)
		if err != nil {
			yield(nil, err)
			return
		}
		if cacheOK {
			if err := c.store(ctx, account, page.Transactions); err != nil {
				logger.Warnw("Failed to write transactions to cache", "account", account, "error", err)
				cacheOK = false
			}
		}
		for _, tx := range page.Transactions {
			maxLedger = max(maxLedger, tx.LedgerIndex)
			if !yield(tx, nil) {
				return
			}
		}
		maxLedger = max(maxLedger, page.LedgerIndexMax)
		if len(page.Marker) == 0 {
			break
		}
		marker = page.Marker
	}

	if !cacheOK {
		return
	}
	synced := maxLedger
	if to != ledger.LatestLedger {
		synced = to
	}
	if synced < start {
		return
	}
	next := coverage{floor: start, synced: synced}
	if prev != nil && prev.floor <= synced+1 && start <= prev.synced+1 {
		next.floor = min(next.floor, prev.floor)
		next.synced = max(next.synced, prev.synced)
	}
	if err := c.extendCoverage(ctx, account, next); err != nil {
		logger.Warnw("Failed to record cached range", "account", account, "error", err)
	}
}

func (c *Cache) store(ctx context.Context, account string, txns []*ledger.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(txns))
	bodies := make(map[string]any, len(txns))
	for _, tx := range txns {
		members = append(members, redis.Z{Score: float64(tx.LedgerIndex), Member: tx.Hash})
		bodies[tx.Hash] = string(tx.Raw)
	}

	pipe := c.client.TxPipeline()
	pipe.ZAdd(ctx, c.indexKey(account), members...)
	pipe.HSet(ctx, c.bodyKey(account), bodies)
	pipe.Expire(ctx, c.indexKey(account), c.ttl)
	pipe.Expire(ctx, c.bodyKey(account), c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Cache) extendCoverage(ctx context.Context, account string, cv coverage) error {
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, c.rangeKey(account), fieldFloor, cv.floor, fieldSynced, cv.synced)
	pipe.Expire(ctx, c.rangeKey(account), c.ttl)
	pipe.Expire(ctx, c.indexKey(account), c.ttl)
	pipe.Expire(ctx, c.bodyKey(account), c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Cache) passthrough(
	ctx context.Context, account string, from, to int64, yield func(*ledger.Transaction, error) bool,
) {
	for tx, err := range ledger.Paginate(ctx, c.upstream, account, from, to) {
		if !yield(tx, err) {
			return
		}
	}
}

// Invalidate drops everything cached for account.
func (c *Cache) Invalidate(ctx context.Context, account string) error {
	return c.client.Del(ctx, c.indexKey(account), c.bodyKey(account), c.rangeKey(account)).Err()
}
