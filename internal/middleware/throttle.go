package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	apperrors "convertax/internal/errors"
	"convertax/internal/logger"
)

// Rule is a request budget: at most Limit requests per client within Window.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Default budgets applied per client IP.
var (
	ThrottleShort = Rule{Name: "short", Limit: 3, Window: time.Second}
	ThrottleLong  = Rule{Name: "long", Limit: 100, Window: 10 * time.Minute}
)

// Limiter counts hits per key and rule.
type Limiter interface {
	// Allow records a hit and reports whether it fits the rule. When it does
	// not, retryAfter is the time until the next hit would be accepted.
	Allow(ctx context.Context, key string, rule Rule) (ok bool, retryAfter time.Duration, err error)
}

// Throttle rejects clients exceeding any of rules with 429 RATE_LIMITED.
// Clients are identified by IP. Limiter failures let the request through.
func Throttle(limiter Limiter, rules ...Rule) gin.HandlerFunc {
	log := logger.Named("throttle")
	return func(c *gin.Context) {
		client := c.ClientIP()
		for _, rule := range rules {
			ok, retryAfter, err := limiter.Allow(c.Request.Context(), client, rule)
			if err != nil {
				log.Warnw("rate limiter unavailable", "rule", rule.Name, "error", err)
				continue
			}
			if !ok {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				abortWithError(c, apperrors.ErrRateLimited)
				return
			}
		}
		c.Next()
	}
}

// MemoryLimiter keeps a sliding log of hit times per key in process memory.
type MemoryLimiter struct {
	mu    sync.Mutex
	hits  map[string]*hitLog
	calls int
	now   func() time.Time
}

type hitLog struct {
	window time.Duration
	times  []time.Time
}

const sweepEvery = 1024

// NewMemoryLimiter creates an empty MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{hits: make(map[string]*hitLog), now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, rule Rule) (bool, time.Duration, error) {
	now := l.now()
	id := rule.Name + "|" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}

	log, ok := l.hits[id]
	if !ok {
		log = &hitLog{window: rule.Window}
		l.hits[id] = log
	}
	log.prune(now)

	if len(log.times) >= rule.Limit {
		return false, log.times[0].Add(rule.Window).Sub(now), nil
	}
	log.times = append(log.times, now)
	return true, 0, nil
}

// sweep drops logs with no hits inside their window.
func (l *MemoryLimiter) sweep(now time.Time) {
	for id, log := range l.hits {
		log.prune(now)
		if len(log.times) == 0 {
			delete(l.hits, id)
		}
	}
}

func (h *hitLog) prune(now time.Time) {
	cutoff := now.Add(-h.window)
	i := 0
	for i < len(h.times) && !h.times[i].After(cutoff) {
		i++
	}
	h.times = h.times[i:]
}

// RedisLimiter counts hits in fixed windows shared by every API instance.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLimiter creates a RedisLimiter storing counters under "throttle:".
func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "throttle:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, rule Rule) (bool, time.Duration, error) {
	id := l.prefix + rule.Name + ":" + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, id)
		ttl = pipe.PTTL(ctx, id)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("throttle %s: %w", rule.Name, err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		if err := l.client.PExpire(ctx, id, rule.Window).Err(); err != nil {
			return false, 0, fmt.Errorf("throttle %s: %w", rule.Name, err)
		}
		remaining = rule.Window
	}

	if incr.Val() > int64(rule.Limit) {
		return false, remaining, nil
	}
	return true, 0, nil
}
