package v1

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerSecond = 5
	defaultBurst             = 10

	// limiterIdleTTL 闲置限流器的回收周期.
	limiterIdleTTL = 10 * time.Minute
)

// userLimiters 按用户维护独立的令牌桶.
type userLimiters struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newUserLimiters(rps float64, burst int) *userLimiters {
	return &userLimiters{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (u *userLimiters) get(key string) *rate.Limiter {
	u.mu.Lock()
	defer u.mu.Unlock()

	entry, ok := u.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(u.rps, u.burst)}
		u.limiters[key] = entry
		if len(u.limiters)%256 == 0 {
			u.sweep()
		}
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// sweep 丢弃长时间未出现的用户. 调用方需持有锁.
func (u *userLimiters) sweep() {
	cutoff := time.Now().Add(-limiterIdleTTL)
	for key, entry := range u.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(u.limiters, key)
		}
	}
}

// rateLimitMiddleware 对聊天路由做按用户限流. 未带用户标识的请求
// 按来源 IP 限流.
func (s *APIV1Service) rateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get(userIDHeader)
		if key == "" {
			key = c.RealIP()
		}
		if !s.limiters.get(key).Allow() {
			return echo.NewHTTPError(http.StatusTooManyRequests, "请求过于频繁，请稍后再试")
		}
		return next(c)
	}
}
