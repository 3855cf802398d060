package middleware

import (
	"bytes"
	"strings"

	"github.com/valyala/fasthttp"

	"dolphinpod/internal/apperr"
	httpctx "dolphinpod/internal/http/ctx"
	"dolphinpod/internal/http/respond"
)

// TokenParser resolves a session token to a user id.
type TokenParser interface {
	Parse(token string) (uint, error)
}

// SessionAuth validates the Bearer session token issued at login and puts
// the user id on the context.
func SessionAuth(sessions TokenParser) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			auth := ctx.Request.Header.Peek("Authorization")
			if len(auth) == 0 {
				respond.Error(ctx, apperr.Unauthorized("missing Authorization header"))
				return
			}

			const prefix = "Bearer "
			if !bytes.HasPrefix(auth, []byte(prefix)) {
				respond.Error(ctx, apperr.Unauthorized("invalid Authorization header"))
				return
			}

			token := strings.TrimSpace(string(auth[len(prefix):]))
			if token == "" {
				respond.Error(ctx, apperr.Unauthorized("empty bearer token"))
				return
			}

			userID, err := sessions.Parse(token)
			if err != nil {
				respond.Error(ctx, err)
				return
			}

			httpctx.SetUserID(ctx, userID)
			l := httpctx.Logger(ctx).With().Uint("user_id", userID).Logger()
			httpctx.SetLogger(ctx, l)
			next(ctx)
		}
	}
}
