package middleware

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "1.2.3.4", ThrottleShort)
		if err != nil || !ok {
			t.Fatalf("hit %d should be allowed (err=%v)", i+1, err)
		}
		now = now.Add(100 * time.Millisecond)
	}

	ok, retry, _ := l.Allow(ctx, "1.2.3.4", ThrottleShort)
	if ok {
		t.Fatal("fourth hit within a second should be rejected")
	}
	if retry != 700*time.Millisecond {
		t.Errorf("retry after = %s, want 700ms", retry)
	}

	if ok, _, _ := l.Allow(ctx, "5.6.7.8", ThrottleShort); !ok {
		t.Error("other clients have their own budget")
	}

	now = now.Add(700 * time.Millisecond)
	if ok, _, _ := l.Allow(ctx, "1.2.3.4", ThrottleShort); !ok {
		t.Error("hit should be allowed once the oldest hit leaves the window")
	}
}

func TestMemoryLimiter_RulesAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter()

	single := Rule{Name: "single", Limit: 1, Window: time.Second}

	if ok, _, _ := l.Allow(ctx, "ip", single); !ok {
		t.Fatal("first hit should be allowed")
	}
	if ok, _, _ := l.Allow(ctx, "ip", single); ok {
		t.Error("second hit within a second should be rejected")
	}
	if ok, _, _ := l.Allow(ctx, "ip", ThrottleShort); !ok {
		t.Error("short budget is tracked separately")
	}
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedisLimiter(client)

	rule := Rule{Name: "test", Limit: 2, Window: time.Second}
	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "ip", rule)
		if err != nil || !ok {
			t.Fatalf("hit %d should be allowed (err=%v)", i+1, err)
		}
	}

	ok, retry, err := l.Allow(ctx, "ip", rule)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatal("third hit should be rejected")
	}
	if retry <= 0 || retry > time.Second {
		t.Errorf("unexpected retry after %s", retry)
	}

	mr.FastForward(time.Second)
	if ok, _, _ := l.Allow(ctx, "ip", rule); !ok {
		t.Error("hit should be allowed in the next window")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, Rule) (bool, time.Duration, error) {
	return false, 0, context.DeadlineExceeded
}

func TestThrottle(t *testing.T) {
	newRouter := func(l Limiter) *gin.Engine {
		r := gin.New()
		r.Use(Throttle(l, Rule{Name: "tiny", Limit: 1, Window: time.Minute}))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return r
	}

	t.Run("rejects_over_budget", func(t *testing.T) {
		r := newRouter(NewMemoryLimiter())

		if rec := doRequest(r, http.MethodGet, "/", nil); rec.Code != http.StatusNoContent {
			t.Fatalf("first request: expected 204, got %d", rec.Code)
		}
		rec := doRequest(r, http.MethodGet, "/", nil)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("second request: expected 429, got %d", rec.Code)
		}
		if code := errorCode(t, rec); code != "RATE_LIMITED" {
			t.Errorf("expected RATE_LIMITED, got %s", code)
		}
		if rec.Header().Get("Retry-After") != "60" {
			t.Errorf("expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
		}
	})

	t.Run("limiter_failure_lets_request_through", func(t *testing.T) {
		r := newRouter(failingLimiter{})
		if rec := doRequest(r, http.MethodGet, "/", nil); rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})
}
