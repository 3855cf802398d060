package middleware

import (
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	httpctx "dolphinpod/internal/http/ctx"
	"dolphinpod/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger tags each request with an id, gives handlers a
// request-scoped logger and records access logs and request metrics.
// Health and metrics scrapes are not logged.
func RequestLogger(base zerolog.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()

			reqID := string(ctx.Request.Header.Peek(requestIDHeader))
			if reqID == "" || len(reqID) > 64 {
				reqID = uuid.NewString()
			}
			httpctx.SetRequestID(ctx, reqID)
			httpctx.SetLogger(ctx, base.With().Str("request_id", reqID).Logger())
			ctx.Response.Header.Set(requestIDHeader, reqID)

			next(ctx)

			duration := time.Since(start)
			status := ctx.Response.StatusCode()
			method := string(ctx.Method())
			path := string(ctx.Path())

			route, _ := ctx.UserValue(router.MatchedRoutePathParam).(string)
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())

			if path == "/metrics" || path == "/healthz" {
				return
			}

			l := httpctx.Logger(ctx)
			ev := l.Info()
			if status >= fasthttp.StatusInternalServerError {
				ev = l.Error()
			} else if status >= fasthttp.StatusBadRequest {
				ev = l.Warn()
			}
			ev.Str("method", method).
				Str("path", path).
				Int("status", status).
				Dur("duration", duration).
				Str("remote_ip", ctx.RemoteIP().String()).
				Msg("request")
		}
	}
}
