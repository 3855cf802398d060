package handlers

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
	"dolphinpod/internal/http/respond"
)

var challengeStatuses = map[string]bool{
	dbpkg.ChallengeInProgress: true,
	dbpkg.ChallengeCompleted:  true,
	dbpkg.ChallengeFailed:     true,
}

func ListChallenges(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		all, err := dbpkg.ListChallenges(db.WithContext(ctx))
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, all)
	}
}

type joinChallengeRequest struct {
	TargetValue *int `json:"target_value"`
}

// JoinChallenge starts an instance of the challenge in the path. The body
// is optional and may override the target value.
func JoinChallenge(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		challengeID, valid := pathID(ctx, "id")
		if !valid {
			return
		}
		var req joinChallengeRequest
		if len(ctx.PostBody()) > 0 && !decodeBody(ctx, &req) {
			return
		}
		if req.TargetValue != nil && *req.TargetValue < 0 {
			respond.Error(ctx, apperr.Validation("target_value must not be negative"))
			return
		}

		inst, err := dbpkg.JoinChallenge(db.WithContext(ctx), userID, challengeID, req.TargetValue, time.Now())
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		created(ctx, inst)
	}
}

// MyChallenges lists the session user's instances, optionally by ?status.
func MyChallenges(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		status := strings.ToUpper(string(ctx.QueryArgs().Peek("status")))
		if status != "" && !challengeStatuses[status] {
			respond.Error(ctx, apperr.Validation("status must be IN_PROGRESS, COMPLETED or FAILED"))
			return
		}
		list, err := dbpkg.ListUserChallenges(db.WithContext(ctx), userID, status)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, list)
	}
}

// RecordProgress appends a progress entry to an instance the user owns.
func RecordProgress(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		instanceID, valid := pathID(ctx, "id")
		if !valid {
			return
		}
		var entry dbpkg.ProgressEntry
		if !decodeBody(ctx, &entry) {
			return
		}
		inst, err := dbpkg.RecordProgress(db.WithContext(ctx), userID, instanceID, entry, time.Now())
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, inst)
	}
}
