package handlers

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
	"dolphinpod/internal/http/respond"
)

type friendRequest struct {
	Nickname string `json:"nickname"`
}

// SendFriendRequest asks the user with the given nickname to be friends.
func SendFriendRequest(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		var req friendRequest
		if !decodeBody(ctx, &req) {
			return
		}
		if req.Nickname == "" {
			respond.Error(ctx, apperr.Validation("nickname is required"))
			return
		}
		tx := db.WithContext(ctx)
		target, err := dbpkg.FindUserByNickname(tx, req.Nickname)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		f, err := dbpkg.SendFriendRequest(tx, userID, target.ID)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		created(ctx, f)
	}
}

func AcceptFriendRequest(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		requestID, valid := pathID(ctx, "id")
		if !valid {
			return
		}
		f, err := dbpkg.AcceptFriendRequest(db.WithContext(ctx), userID, requestID)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, f)
	}
}

func PendingFriendRequests(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		list, err := dbpkg.PendingRequests(db.WithContext(ctx), userID)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, list)
	}
}

func ListFriends(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		friends, err := dbpkg.ListFriends(db.WithContext(ctx), userID)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, friends)
	}
}

type alertRequest struct {
	ReceiverID uint `json:"receiver_id"`
}

// SendAlert nudges a friend.
func SendAlert(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		var req alertRequest
		if !decodeBody(ctx, &req) {
			return
		}
		if req.ReceiverID == 0 {
			respond.Error(ctx, apperr.Validation("receiver_id is required"))
			return
		}
		a, err := dbpkg.SendAlert(db.WithContext(ctx), userID, req.ReceiverID)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		created(ctx, a)
	}
}

func ListAlerts(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		alerts, err := dbpkg.ListAlerts(db.WithContext(ctx), userID, queryInt(ctx, "limit", 50))
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, alerts)
	}
}
