package handlers

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "dolphinpod/internal/db"
	"dolphinpod/internal/http/respond"
)

func ListCharacters(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		chars, err := dbpkg.ListCharacters(db.WithContext(ctx))
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, chars)
	}
}

func MyCharacters(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		owned, err := dbpkg.ListUserCharacters(db.WithContext(ctx), userID)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, owned)
	}
}

// AcquireCharacter unlocks the character in the path for the session user.
func AcquireCharacter(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		charID, valid := pathID(ctx, "id")
		if !valid {
			return
		}
		uc, err := dbpkg.AcquireCharacter(db.WithContext(ctx), userID, charID)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		created(ctx, uc)
	}
}

func EquipCharacter(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		charID, valid := pathID(ctx, "id")
		if !valid {
			return
		}
		if err := dbpkg.EquipCharacter(db.WithContext(ctx), userID, charID); err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, map[string]any{"equipped_character_id": charID})
	}
}

func ListAchievements(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		all, err := dbpkg.ListAchievements(db.WithContext(ctx))
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, all)
	}
}

func MyAchievements(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		got, err := dbpkg.ListUserAchievements(db.WithContext(ctx), userID)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, got)
	}
}
