package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
	"dolphinpod/internal/http/respond"
	"dolphinpod/internal/ingest"
)

// Ingester accepts usage batches for a user.
type Ingester interface {
	Ingest(ctx context.Context, userID uint, batch ingest.Batch) (ingest.Result, error)
}

type submitResponse struct {
	Message   string `json:"message"`
	Submitted int    `json:"submitted"`
	Accepted  int    `json:"accepted"`
}

// SubmitLogs stores a batch of usage sessions for the session user.
func SubmitLogs(ingester Ingester) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		userID, ok := MustUserID(ctx)
		if !ok {
			return
		}

		var batch ingest.Batch
		if !decodeBody(ctx, &batch) {
			return
		}

		res, err := ingester.Ingest(ctx, userID, batch)
		if err != nil {
			respond.Error(ctx, err)
			return
		}

		respond.JSON(ctx, fasthttp.StatusCreated, submitResponse{
			Message:   fmt.Sprintf("Of %d records, %d new records were saved", res.Submitted, res.Accepted),
			Submitted: res.Submitted,
			Accepted:  res.Accepted,
		})
	}
}

// ListLogs returns the session user's logs. With package_name and
// first_time_stamp it looks up a single session; with date it returns
// that local day; otherwise everything. No logs is a 404.
func ListLogs(db *gorm.DB, defaultLoc *time.Location) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx, db)
		if !ok {
			return
		}
		store := dbpkg.NewUsageStore(db)
		args := ctx.QueryArgs()

		if pkg := string(args.Peek("package_name")); pkg != "" {
			first, err := strconv.ParseInt(string(args.Peek("first_time_stamp")), 10, 64)
			if err != nil {
				respond.Error(ctx, apperr.Validation("first_time_stamp must be epoch milliseconds"))
				return
			}
			rec, err := store.FindUsageLog(ctx, user.ID, pkg, first)
			if err != nil {
				respond.Error(ctx, err)
				return
			}
			respond.JSON(ctx, fasthttp.StatusOK, rec)
			return
		}

		var from, to time.Time
		if day := string(args.Peek("date")); day != "" {
			loc := userLocation(user, defaultLoc)
			start, err := parseDay(day, loc, time.Now())
			if err != nil {
				respond.Error(ctx, err)
				return
			}
			from, to = dbpkg.DayBounds(start, loc)
		}

		logs, err := store.ListUsageLogs(ctx, user.ID, from, to)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		if len(logs) == 0 {
			respond.Error(ctx, apperr.NotFound("no logs found for the user"))
			return
		}
		respond.JSON(ctx, fasthttp.StatusOK, logs)
	}
}
