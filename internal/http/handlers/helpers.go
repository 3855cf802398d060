package handlers

import (
	"encoding/json"
	"strconv"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
	httpctx "dolphinpod/internal/http/ctx"
	"dolphinpod/internal/http/respond"
)

// MustUserID returns the session user id, or sends 401 and returns (0, false).
func MustUserID(ctx *fasthttp.RequestCtx) (uint, bool) {
	id, ok := httpctx.UserIDFromCtx(ctx)
	if !ok {
		respond.Error(ctx, apperr.Unauthorized("unauthorized"))
		return 0, false
	}
	return id, true
}

// MustUser loads the session user. A token for a deleted account is a 404,
// matching the ingestion path.
func MustUser(ctx *fasthttp.RequestCtx, db *gorm.DB) (*dbpkg.User, bool) {
	id, ok := MustUserID(ctx)
	if !ok {
		return nil, false
	}
	user, err := dbpkg.FindUser(db.WithContext(ctx), id)
	if err != nil {
		respond.Error(ctx, err)
		return nil, false
	}
	return user, true
}

// decodeBody unmarshals the JSON body into v or sends 400.
func decodeBody(ctx *fasthttp.RequestCtx, v any) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		respond.Error(ctx, apperr.Validation("request body is required"))
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		respond.Error(ctx, apperr.Validation("invalid JSON body"))
		return false
	}
	return true
}

// pathID parses a numeric route parameter or sends 400.
func pathID(ctx *fasthttp.RequestCtx, name string) (uint, bool) {
	idStr, _ := ctx.UserValue(name).(string)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		respond.Error(ctx, apperr.Validation("invalid "+name))
		return 0, false
	}
	return uint(id), true
}

func queryInt(ctx *fasthttp.RequestCtx, name string, def int) int {
	v := ctx.QueryArgs().Peek(name)
	if len(v) == 0 {
		return def
	}
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return def
	}
	return n
}

func ok(ctx *fasthttp.RequestCtx, v any) {
	respond.JSON(ctx, fasthttp.StatusOK, v)
}

func created(ctx *fasthttp.RequestCtx, v any) {
	respond.JSON(ctx, fasthttp.StatusCreated, v)
}
