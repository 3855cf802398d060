package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "dolphinpod/internal/db"
	httpctx "dolphinpod/internal/http/ctx"
	"dolphinpod/internal/http/respond"
	"dolphinpod/internal/llm"
)

// Advisor writes the LLM-generated texts.
type Advisor interface {
	DailyComment(ctx context.Context, in llm.DailyInput) (llm.Comment, error)
	DailyReport(ctx context.Context, cacheKey string, in llm.ReportInput) (llm.Report, error)
	CheckInQuestion(ctx context.Context, in llm.QuestionInput) (json.RawMessage, error)
}

// CheckInQuestion generates the next check-in question.
func CheckInQuestion(advisor Advisor) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, valid := MustUserID(ctx); !valid {
			return
		}
		var in llm.QuestionInput
		if !decodeBody(ctx, &in) {
			return
		}
		q, err := advisor.CheckInQuestion(ctx, in)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBody(q)
	}
}

// dayContext gathers the user's usage and check-in for a local day.
type dayContext struct {
	user    *dbpkg.User
	day     time.Time
	stats   dbpkg.DayStats
	checkIn *dbpkg.CheckIn
}

func loadDayContext(ctx *fasthttp.RequestCtx, db *gorm.DB, defaultLoc *time.Location) (*dayContext, bool) {
	user, valid := MustUser(ctx, db)
	if !valid {
		return nil, false
	}
	loc := userLocation(user, defaultLoc)
	day, err := parseDay(string(ctx.QueryArgs().Peek("date")), loc, time.Now())
	if err != nil {
		respond.Error(ctx, err)
		return nil, false
	}
	from, to := dbpkg.DayBounds(day, loc)

	tx := db.WithContext(ctx)
	logs, err := dbpkg.NewUsageStore(tx).ListUsageLogs(ctx, user.ID, from, to)
	if err != nil {
		respond.Error(ctx, err)
		return nil, false
	}
	checkIns, err := dbpkg.ListCheckIns(tx, user.ID, from, to)
	if err != nil {
		respond.Error(ctx, err)
		return nil, false
	}

	dc := &dayContext{user: user, day: day, stats: dbpkg.SummarizeDay(logs)}
	if len(checkIns) > 0 {
		dc.checkIn = &checkIns[0]
	}
	return dc, true
}

// DailyComment comments on the ?date (default today) usage.
func DailyComment(db *gorm.DB, advisor Advisor, defaultLoc *time.Location) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		dc, valid := loadDayContext(ctx, db, defaultLoc)
		if !valid {
			return
		}
		in := llm.DailyInput{
			Date:            dc.day.Format(dateLayout),
			Nickname:        dc.user.Nickname,
			TotalMinutes:    dc.stats.TotalMinutes,
			NightMinutes:    dc.stats.NightMinutes,
			TargetMinutes:   dc.user.TargetTime,
			CategoryMinutes: dc.stats.CategoryMinutes,
			UnlockCount:     dc.stats.UnlockCount,
			SessionCount:    dc.stats.SessionCount,
		}
		if dc.checkIn != nil {
			in.CheckIn = &llm.CheckInSummary{Answer: dc.checkIn.UserAnswer, Text: dc.checkIn.UserAnswerText}
		}

		c, err := advisor.DailyComment(ctx, in)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		ok(ctx, c)
	}
}

// DailyReport generates the ?date report and stores it as the day's
// report content.
func DailyReport(db *gorm.DB, advisor Advisor, defaultLoc *time.Location) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		dc, valid := loadDayContext(ctx, db, defaultLoc)
		if !valid {
			return
		}
		in := llm.ReportInput{
			UserProfile: map[string]any{
				"nickname":       dc.user.Nickname,
				"target_minutes": dc.user.TargetTime,
			},
			TodayMetrics: map[string]any{
				"date":               dc.day.Format(dateLayout),
				"total_minutes":      dc.stats.TotalMinutes,
				"late_night_minutes": dc.stats.NightMinutes,
				"category_minutes":   dc.stats.CategoryMinutes,
				"unlock_count":       dc.stats.UnlockCount,
				"session_count":      dc.stats.SessionCount,
			},
			Constraints: map[string]any{"max_comments": 3, "max_suggestions": 1},
		}
		if dc.checkIn != nil {
			in.CheckinAnswers = map[string]any{
				"question": dc.checkIn.GeneratedQuestion,
				"answer":   dc.checkIn.UserAnswer,
				"text":     dc.checkIn.UserAnswerText,
			}
		}

		key := fmt.Sprintf("%d:%s", dc.user.ID, dc.day.Format(dateLayout))
		rep, err := advisor.DailyReport(ctx, key, in)
		if err != nil {
			respond.Error(ctx, err)
			return
		}

		if content, err := reportContent(rep); err == nil {
			err = dbpkg.SaveDailyReportContent(db.WithContext(ctx), dc.user.ID, dc.day, content)
			if err != nil {
				l := httpctx.Logger(ctx)
				l.Warn().Err(err).Msg("saving daily report content failed")
			}
		}
		ok(ctx, rep)
	}
}

func reportContent(rep llm.Report) (map[string]any, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	err = json.Unmarshal(body, &out)
	return out, err
}
