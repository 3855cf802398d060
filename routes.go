package main

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"dolphinpod/internal/http/handlers"
	appmw "dolphinpod/internal/http/middleware"
)

func registerRoutes(r *router.Router, s *services) {
	gdb, loc := s.db, s.defaultLoc

	user := appmw.SessionAuth(s.sessions)
	limited := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return user(s.limiter.Middleware(h))
	}
	admin := appmw.AdminAuth(gdb)

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})
	r.GET("/metrics", handlers.MetricsHandler(handlers.NewRegistry()))

	r.POST("/auth/google", handlers.GoogleLogin(gdb, s.verifier, s.sessions))

	v1 := r.Group("/api/v1")

	v1.POST("/logs", user(handlers.SubmitLogs(s.classifier)))
	v1.GET("/logs", user(handlers.ListLogs(gdb, loc)))

	v1.GET("/users/me", user(handlers.GetMe(gdb)))
	v1.PATCH("/users/me", user(handlers.UpdateMe(gdb)))

	v1.GET("/characters", user(handlers.ListCharacters(gdb)))
	v1.GET("/characters/me", user(handlers.MyCharacters(gdb)))
	v1.POST("/characters/{id}/acquire", user(handlers.AcquireCharacter(gdb)))
	v1.POST("/characters/{id}/equip", user(handlers.EquipCharacter(gdb)))
	v1.GET("/achievements", user(handlers.ListAchievements(gdb)))
	v1.GET("/achievements/me", user(handlers.MyAchievements(gdb)))

	v1.GET("/challenges", user(handlers.ListChallenges(gdb)))
	v1.POST("/challenges/{id}/join", user(handlers.JoinChallenge(gdb)))
	v1.GET("/challenges/me", user(handlers.MyChallenges(gdb)))
	v1.POST("/challenge-instances/{id}/progress", user(handlers.RecordProgress(gdb)))

	v1.POST("/friends/requests", user(handlers.SendFriendRequest(gdb)))
	v1.GET("/friends/requests", user(handlers.PendingFriendRequests(gdb)))
	v1.POST("/friends/requests/{id}/accept", user(handlers.AcceptFriendRequest(gdb)))
	v1.GET("/friends", user(handlers.ListFriends(gdb)))
	v1.POST("/alerts", user(handlers.SendAlert(gdb)))
	v1.GET("/alerts", user(handlers.ListAlerts(gdb)))

	v1.POST("/checkins", user(handlers.SaveCheckIn(gdb, loc)))
	v1.GET("/checkins", user(handlers.ListCheckIns(gdb)))
	v1.GET("/reports/daily/{date}", user(handlers.GetDailyReport(gdb, loc)))
	v1.GET("/reports/weekly/{week}", user(handlers.GetWeeklyReport(gdb, loc)))
	v1.POST("/calendar-events", user(handlers.CreateCalendarEvent(gdb)))
	v1.GET("/calendar-events", user(handlers.ListCalendarEvents(gdb)))
	v1.POST("/recommendations", user(handlers.Recommend(gdb)))
	v1.GET("/recommendations", user(handlers.ListRecommendations(gdb)))
	v1.POST("/recommendations/{id}/feedback", user(handlers.SubmitFeedback(gdb)))

	// LLM-backed routes are rate limited per user.
	v1.POST("/ai/checkin-question", limited(handlers.CheckInQuestion(s.reporter)))
	v1.GET("/ai/daily-comment", limited(handlers.DailyComment(gdb, s.reporter, loc)))
	v1.GET("/ai/daily-report", limited(handlers.DailyReport(gdb, s.reporter, loc)))

	r.POST("/admin/characters", admin(handlers.AdminCreateCharacter(gdb)))
	r.POST("/admin/achievements", admin(handlers.AdminCreateAchievement(gdb)))
	r.POST("/admin/challenges", admin(handlers.AdminCreateChallenge(gdb)))
	r.POST("/admin/recommended-actions", admin(handlers.AdminCreateRecommendedAction(gdb)))
	r.POST("/admin/users/{id}/achievements/{aid}", admin(handlers.AdminGrantAchievement(gdb)))
	r.GET("/admin/healthz", admin(func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("admin ok")
	}))
}
