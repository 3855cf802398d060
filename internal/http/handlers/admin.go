package handlers

import (
	"errors"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
	"dolphinpod/internal/http/respond"
)

// createRow inserts v after check passes. A unique violation is a 409.
func createRow(ctx *fasthttp.RequestCtx, db *gorm.DB, v any, check func() error) {
	if !decodeBody(ctx, v) {
		return
	}
	if err := check(); err != nil {
		respond.Error(ctx, err)
		return
	}
	if err := db.WithContext(ctx).Create(v).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			respond.Error(ctx, apperr.Conflict("already exists"))
			return
		}
		respond.Error(ctx, err)
		return
	}
	created(ctx, v)
}

func AdminCreateCharacter(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var c dbpkg.Character
		createRow(ctx, db, &c, func() error {
			c.ID = 0
			if c.Name == "" {
				return apperr.Validation("name is required")
			}
			switch c.UnlockType {
			case dbpkg.UnlockCoin, dbpkg.UnlockXP, dbpkg.UnlockAchievement:
			default:
				return apperr.Validation("unlock_type must be coin, xp or achievement")
			}
			if c.UnlockValue < 0 {
				return apperr.Validation("unlock_value must not be negative")
			}
			return nil
		})
	}
}

func AdminCreateAchievement(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var a dbpkg.Achievement
		createRow(ctx, db, &a, func() error {
			a.ID = 0
			if a.Title == "" {
				return apperr.Validation("title is required")
			}
			return nil
		})
	}
}

func AdminCreateChallenge(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var c dbpkg.Challenge
		createRow(ctx, db, &c, func() error {
			c.ID = 0
			if c.Title == "" || c.ChallengeType == "" {
				return apperr.Validation("title and challenge_type are required")
			}
			if c.TimeScope != dbpkg.ScopeDaily && c.TimeScope != dbpkg.ScopeWeekly {
				return apperr.Validation("time_scope must be DAILY or WEEKLY")
			}
			if c.DefaultTargetValue < 0 || c.RewardXP < 0 {
				return apperr.Validation("default_target_value and reward_xp must not be negative")
			}
			return nil
		})
	}
}

func AdminCreateRecommendedAction(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var a dbpkg.RecommendedAction
		createRow(ctx, db, &a, func() error {
			a.ID = 0
			if a.ActionTitle == "" || a.Category == "" {
				return apperr.Validation("action_title and category are required")
			}
			if a.Difficulty < 1 || a.Difficulty > 3 {
				return apperr.Validation("difficulty must be between 1 and 3")
			}
			return nil
		})
	}
}

// AdminGrantAchievement awards achievement {aid} to user {id}.
func AdminGrantAchievement(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := pathID(ctx, "id")
		if !valid {
			return
		}
		achievementID, valid := pathID(ctx, "aid")
		if !valid {
			return
		}
		ua, err := dbpkg.GrantAchievement(db.WithContext(ctx), userID, achievementID)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		created(ctx, ua)
	}
}
