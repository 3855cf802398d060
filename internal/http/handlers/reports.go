package handlers

import (
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
	"dolphinpod/internal/http/respond"
)

type checkInRequest struct {
	Date              string         `json:"date"`
	GeneratedQuestion string         `json:"generated_question"`
	UserAnswer        string         `json:"user_answer"`
	UserAnswerText    string         `json:"user_answer_text"`
	Context           map[string]any `json:"context"`
	IsTextGenerated   bool           `json:"is_text_generated"`
}

// SaveCheckIn records the answer for a local day, today by default.
func SaveCheckIn(db *gorm.DB, defaultLoc *time.Location) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, valid := MustUser(ctx, db)
		if !valid {
			return
		}
		var req checkInRequest
		if !decodeBody(ctx, &req) {
			return
		}
		day, err := parseDay(req.Date, userLocation(user, defaultLoc), time.Now())
		if err != nil {
			respond.Error(ctx, err)
			return
		}

		c := dbpkg.CheckIn{
			UserID:            user.ID,
			Date:              dbpkg.CalendarDate(day),
			GeneratedQuestion: req.GeneratedQuestion,
			UserAnswer:        req.UserAnswer,
			UserAnswerText:    req.UserAnswerText,
			Context:           datatypes.JSONMap(req.Context),
			IsTextGenerated:   req.IsTextGenerated,
		}
		if err := dbpkg.SaveCheckIn(db.WithContext(ctx), &c); err != nil {
			respond.Error(ctx, err)
			return
		}
		created(ctx, c)
	}
}

// ListCheckIns returns the most recent check-ins, newest first.
func ListCheckIns(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		list, err := dbpkg.ListCheckIns(db.WithContext(ctx), userID, time.Time{}, time.Time{})
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, list)
	}
}

// GetDailyReport returns the stored report for the {date} path value.
func GetDailyReport(db *gorm.DB, defaultLoc *time.Location) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, valid := MustUser(ctx, db)
		if !valid {
			return
		}
		v, _ := ctx.UserValue("date").(string)
		day, err := parseDay(v, userLocation(user, defaultLoc), time.Now())
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		rep, err := dbpkg.FindDailyReport(db.WithContext(ctx), user.ID, day)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, rep)
	}
}

// GetWeeklyReport averages the daily reports of the {week} path value
// (e.g. 2025-W09) and returns the stored weekly report.
func GetWeeklyReport(db *gorm.DB, defaultLoc *time.Location) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, valid := MustUser(ctx, db)
		if !valid {
			return
		}
		v, _ := ctx.UserValue("week").(string)
		monday, err := dbpkg.ParseISOWeek(v, userLocation(user, defaultLoc))
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		rep, err := dbpkg.BuildWeeklyReport(db.WithContext(ctx), user.ID, monday)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, rep)
	}
}

type calendarEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func CreateCalendarEvent(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		var req calendarEventRequest
		if !decodeBody(ctx, &req) {
			return
		}
		ev := dbpkg.CalendarEvent{UserID: userID, Title: req.Title, Description: req.Description, Category: req.Category}
		if err := dbpkg.CreateCalendarEvent(db.WithContext(ctx), &ev); err != nil {
			respond.Error(ctx, err)
			return
		}
		created(ctx, ev)
	}
}

func ListCalendarEvents(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		list, err := dbpkg.ListCalendarEvents(db.WithContext(ctx), userID)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, list)
	}
}

// Recommend draws a new recommended action, optionally from ?category.
func Recommend(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		rec, err := dbpkg.Recommend(db.WithContext(ctx), userID, string(ctx.QueryArgs().Peek("category")))
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		created(ctx, rec)
	}
}

func ListRecommendations(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		list, err := dbpkg.ListRecommendations(db.WithContext(ctx), userID, queryInt(ctx, "limit", 20))
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, list)
	}
}

type feedbackRequest struct {
	Rating string `json:"rating"`
}

func SubmitFeedback(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, valid := MustUserID(ctx)
		if !valid {
			return
		}
		recID, valid := pathID(ctx, "id")
		if !valid {
			return
		}
		var req feedbackRequest
		if !decodeBody(ctx, &req) {
			return
		}
		if req.Rating == "" {
			respond.Error(ctx, apperr.Validation("rating is required"))
			return
		}
		fb, err := dbpkg.SubmitFeedback(db.WithContext(ctx), userID, recID, req.Rating)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		created(ctx, fb)
	}
}
