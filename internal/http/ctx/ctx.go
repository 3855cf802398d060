package ctx

import (
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	dbpkg "dolphinpod/internal/db"
)

const (
	UserIDKey    = "userID"
	AdminKey     = "admin"
	RequestIDKey = "requestID"
	LoggerKey    = "logger"
)

func SetUserID(ctx *fasthttp.RequestCtx, id uint) {
	ctx.SetUserValue(UserIDKey, id)
}

func UserIDFromCtx(ctx *fasthttp.RequestCtx) (uint, bool) {
	v := ctx.UserValue(UserIDKey)
	if v == nil {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

func SetAdmin(ctx *fasthttp.RequestCtx, admin *dbpkg.Admin) {
	ctx.SetUserValue(AdminKey, admin)
}

func AdminFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.Admin, bool) {
	v := ctx.UserValue(AdminKey)
	if v == nil {
		return nil, false
	}
	a, ok := v.(*dbpkg.Admin)
	return a, ok
}

func SetRequestID(ctx *fasthttp.RequestCtx, id string) {
	ctx.SetUserValue(RequestIDKey, id)
}

func RequestIDFromCtx(ctx *fasthttp.RequestCtx) string {
	s, _ := ctx.UserValue(RequestIDKey).(string)
	return s
}

func SetLogger(ctx *fasthttp.RequestCtx, l zerolog.Logger) {
	ctx.SetUserValue(LoggerKey, l)
}

// Logger returns the request-scoped logger, or a disabled one outside
// the request logging middleware.
func Logger(ctx *fasthttp.RequestCtx) zerolog.Logger {
	if l, ok := ctx.UserValue(LoggerKey).(zerolog.Logger); ok {
		return l
	}
	return zerolog.Nop()
}
