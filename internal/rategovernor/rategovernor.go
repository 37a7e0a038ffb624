// Package rategovernor implements the Rate Governor (spec §4.3): a global
// concurrency semaphore plus a per-origin token-bucket enforced atomically
// in Redis via a Lua script, grounded on the teacher's
// internal/edge/orchestrator selectAndReserveScript pattern (atomic
// check-and-reserve expressed as a single EVAL round trip rather than a
// GET-then-SET race).
package rategovernor

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// acquireScript implements a token-bucket: each origin gets a bucket sized
// burst = max(1, rps), refilling at rps tokens/sec. It returns 1 (token
// granted) or 0 (exhausted); on 0, waitForToken retries after its own
// doubling backoff.
//
// KEYS[1] = bucket key
// ARGV[1] = rps (tokens per second)
// ARGV[2] = burst (bucket capacity)
// ARGV[3] = now (unix millis)
var acquireScript = redis.NewScript(`
local key = KEYS[1]
local rps = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local bucket = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(bucket[1])
local ts = tonumber(bucket[2])

if tokens == nil then
  tokens = burst
  ts = now
end

local elapsed = math.max(0, now - ts) / 1000.0
tokens = math.min(burst, tokens + elapsed * rps)

if tokens >= 1 then
  tokens = tokens - 1
  redis.call("HMSET", key, "tokens", tokens, "ts", now)
  redis.call("EXPIRE", key, 3600)
  return 1
else
  redis.call("HMSET", key, "tokens", tokens, "ts", now)
  redis.call("EXPIRE", key, 3600)
  return 0
end
`)

// Governor enforces global concurrency and per-origin RPS.
type Governor struct {
	rdb    *redis.Client
	logger *zap.Logger

	defaultRPS float64
	sem        chan struct{}
}

// Config configures a Governor.
type Config struct {
	GlobalConcurrency int
	DefaultRPS        float64
}

// New builds a Governor backed by the given Redis client.
func New(rdb *redis.Client, cfg Config, logger *zap.Logger) *Governor {
	concurrency := cfg.GlobalConcurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	rps := cfg.DefaultRPS
	if rps <= 0 {
		rps = 1
	}
	return &Governor{
		rdb:        rdb,
		logger:     logger,
		defaultRPS: rps,
		sem:        make(chan struct{}, concurrency),
	}
}

// Lease is held for the duration of one in-flight page; Release must always
// be called, including on early cancellation (spec §4.3 "tokens already
// held must be released on early exit" — here the concurrency slot is the
// only held resource since rate tokens are not reserved, only consumed).
type Lease struct {
	g *Governor
}

// Release returns the concurrency slot.
func (l *Lease) Release() {
	<-l.g.sem
}

// Acquire blocks until a global concurrency slot is available, then spins
// (with backoff) on the origin's token bucket until a token is granted or
// ctx is canceled. crawlDelay, if non-zero, overrides rps to
// min(rps, 1/crawlDelay) per spec §4.3.
func (g *Governor) Acquire(ctx context.Context, origin string, crawlDelay time.Duration) (*Lease, error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	rps := g.defaultRPS
	if crawlDelay > 0 {
		delayRPS := 1.0 / crawlDelay.Seconds()
		if delayRPS < rps {
			rps = delayRPS
		}
	}

	if err := g.waitForToken(ctx, origin, rps); err != nil {
		<-g.sem
		return nil, err
	}

	return &Lease{g: g}, nil
}

func (g *Governor) waitForToken(ctx context.Context, origin string, rps float64) error {
	burst := rps
	if burst < 1 {
		burst = 1
	}
	key := bucketKey(origin)

	backoff := 25 * time.Millisecond
	for {
		granted, err := g.tryAcquireToken(ctx, key, rps, burst)
		if err != nil {
			return err
		}
		if granted {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}
}

func (g *Governor) tryAcquireToken(ctx context.Context, key string, rps, burst float64) (bool, error) {
	now := time.Now().UnixMilli()
	result, err := acquireScript.Run(ctx, g.rdb, []string{key}, rps, burst, now).Int()
	if err != nil {
		if g.logger != nil {
			g.logger.Warn("rate governor script failed", zap.String("key", key), zap.Error(err))
		}
		return false, fmt.Errorf("rategovernor: token acquisition failed: %w", err)
	}
	return result == 1, nil
}

func bucketKey(origin string) string {
	return "ratebucket:" + origin
}
