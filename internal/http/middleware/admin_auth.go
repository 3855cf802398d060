package middleware

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
	httpctx "dolphinpod/internal/http/ctx"
	"dolphinpod/internal/http/respond"
)

// AdminAuth checks HTTP Basic credentials against the admins table.
func AdminAuth(db *gorm.DB) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			username, password, ok := basicCredentials(ctx.Request.Header.Peek("Authorization"))
			if !ok {
				ctx.Response.Header.Set("WWW-Authenticate", `Basic realm="dolphinpod admin"`)
				respond.Error(ctx, apperr.Unauthorized("admin credentials required"))
				return
			}

			admin, valid, err := dbpkg.AuthenticateAdmin(db.WithContext(ctx), username, password)
			if err != nil {
				respond.Error(ctx, apperr.Internal(err))
				return
			}
			if !valid {
				ctx.Response.Header.Set("WWW-Authenticate", `Basic realm="dolphinpod admin"`)
				respond.Error(ctx, apperr.Unauthorized("invalid admin credentials"))
				return
			}

			httpctx.SetAdmin(ctx, admin)
			next(ctx)
		}
	}
}

func basicCredentials(header []byte) (string, string, bool) {
	const prefix = "Basic "
	if !bytes.HasPrefix(header, []byte(prefix)) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(header[len(prefix):])))
	if err != nil {
		return "", "", false
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok || user == "" {
		return "", "", false
	}
	return user, pass, true
}
