package handlers

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
	"dolphinpod/internal/http/respond"
	"dolphinpod/internal/nightmode"
)

// GetMe returns the session user's profile.
func GetMe(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx, db)
		if !ok {
			return
		}
		respond.JSON(ctx, fasthttp.StatusOK, user)
	}
}

// UpdateMe applies a partial profile update.
func UpdateMe(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx, db)
		if !ok {
			return
		}

		var upd dbpkg.ProfileUpdate
		if !decodeBody(ctx, &upd) {
			return
		}
		if err := validateProfile(user, &upd); err != nil {
			respond.Error(ctx, err)
			return
		}

		updated, err := dbpkg.UpdateProfile(db.WithContext(ctx), user.ID, upd)
		if err != nil {
			respond.Error(ctx, err)
			return
		}
		respond.JSON(ctx, fasthttp.StatusOK, updated)
	}
}

// validateProfile checks the changed fields and normalizes the night
// window to HH:MM. Changing one bound is validated against the other.
func validateProfile(user *dbpkg.User, upd *dbpkg.ProfileUpdate) error {
	if upd.Nickname != nil {
		n := strings.TrimSpace(*upd.Nickname)
		if n == "" || len(n) > 64 {
			return apperr.Validation("nickname must be 1 to 64 characters")
		}
	}
	if upd.TargetTime != nil && *upd.TargetTime < 0 {
		return apperr.Validation("target_time must not be negative")
	}
	if upd.Timezone != nil && *upd.Timezone != "" {
		if _, err := time.LoadLocation(*upd.Timezone); err != nil {
			return apperr.Validation("unknown timezone " + *upd.Timezone)
		}
	}

	if upd.NightModeStart == nil && upd.NightModeEnd == nil {
		return nil
	}
	start, end := user.NightModeStart, user.NightModeEnd
	if upd.NightModeStart != nil {
		start = *upd.NightModeStart
	}
	if upd.NightModeEnd != nil {
		end = *upd.NightModeEnd
	}
	if start == "" && end == "" {
		return nil
	}
	w, err := nightmode.ParseWindow(start, end)
	if err != nil {
		return apperr.Validation(err.Error())
	}
	upd.NightModeStart, upd.NightModeEnd = &w.Start, &w.End
	return nil
}
