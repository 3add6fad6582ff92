/*
Package receipt issues payment receipt numbers.

FORMAT:
  REC-YYYYMMDD-NNNNNN   e.g. REC-20250311-000042

  The counter restarts every calendar day. Numbers are unique per day as
  long as a single counter backs all terminals (Redis in production).

ISSUERS:
  - RedisIssuer:    INCR on receipt:YYYYMMDD, shared by every process
  - MemoryIssuer:   per-process counter for tests and single-node dev
  - FallbackIssuer: wraps another issuer; on failure derives the suffix
                    from the clock so a payment is never blocked
*/
package receipt

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/warp/lending-engine/lending"
)

// Issuer hands out the next receipt number for a business day.
type Issuer interface {
	Next(ctx context.Context, day lending.Date) (string, error)
}

// Format renders a receipt number from a day and a daily sequence.
func Format(day lending.Date, seq int64) string {
	return fmt.Sprintf("REC-%s-%06d", day.Format("20060102"), seq)
}

func counterKey(day lending.Date) string { return "receipt:" + day.Format("20060102") }

// =============================================================================
// REDIS
// =============================================================================

// counterTTL keeps yesterday's counter around for late-night terminals.
const counterTTL = 48 * time.Hour

type RedisIssuer struct {
	client *redis.Client
}

func NewRedisIssuer(addr, password string, db int) *RedisIssuer {
	return &RedisIssuer{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (r *RedisIssuer) Next(ctx context.Context, day lending.Date) (string, error) {
	key := counterKey(day)
	seq, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if seq == 1 {
		if err := r.client.Expire(ctx, key, counterTTL).Err(); err != nil {
			return "", fmt.Errorf("failed to set expiry on %s: %w", key, err)
		}
	}
	return Format(day, seq), nil
}

func (r *RedisIssuer) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisIssuer) Close() error { return r.client.Close() }

// =============================================================================
// MEMORY
// =============================================================================

type MemoryIssuer struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryIssuer() *MemoryIssuer {
	return &MemoryIssuer{counters: make(map[string]int64)}
}

func (m *MemoryIssuer) Next(_ context.Context, day lending.Date) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := counterKey(day)
	m.counters[key]++
	return Format(day, m.counters[key]), nil
}

// =============================================================================
// FALLBACK
// =============================================================================

type FallbackIssuer struct {
	primary Issuer
	log     zerolog.Logger
	now     func() time.Time
}

func NewFallbackIssuer(primary Issuer, log zerolog.Logger) *FallbackIssuer {
	return &FallbackIssuer{primary: primary, log: log, now: time.Now}
}

// Next asks the primary issuer. If it fails, the suffix is the last six
// digits of the current Unix time in milliseconds.
func (f *FallbackIssuer) Next(ctx context.Context, day lending.Date) (string, error) {
	number, err := f.primary.Next(ctx, day)
	if err == nil {
		return number, nil
	}

	millis := strconv.FormatInt(f.now().UnixMilli(), 10)
	if len(millis) > 6 {
		millis = millis[len(millis)-6:]
	}
	number = fmt.Sprintf("REC-%s-%s", day.Format("20060102"), millis)
	f.log.Warn().Err(err).Str("receipt", number).Msg("receipt counter unavailable, using clock fallback")
	return number, nil
}
