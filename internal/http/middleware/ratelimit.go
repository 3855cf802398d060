package middleware

import (
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	httpctx "dolphinpod/internal/http/ctx"
	"dolphinpod/internal/http/respond"
)

const limiterCacheSize = 10000

// RateLimiter hands out one token bucket per caller. Buckets for callers
// not seen in a while are evicted.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	cache, _ := lru.New[string, *rate.Limiter](limiterCacheSize)
	return &RateLimiter{limit: rate.Limit(rps), burst: burst, limiters: cache}
}

func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(key, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Middleware limits by session user, falling back to the remote IP on
// unauthenticated routes.
func (l *RateLimiter) Middleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		key := "ip:" + ctx.RemoteIP().String()
		if id, ok := httpctx.UserIDFromCtx(ctx); ok {
			key = "user:" + strconv.FormatUint(uint64(id), 10)
		}
		if !l.Allow(key) {
			ctx.Response.Header.Set("Retry-After", "2")
			respond.JSON(ctx, fasthttp.StatusTooManyRequests, respond.ErrorBody{
				Message:   "too many requests, please slow down",
				ErrorType: "rate_limited",
				RequestID: httpctx.RequestIDFromCtx(ctx),
			})
			return
		}
		next(ctx)
	}
}
