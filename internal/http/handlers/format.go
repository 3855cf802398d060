package handlers

import (
	"strings"
	"time"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
)

const dateLayout = "2006-01-02"

// userLocation returns the user's timezone, else def.
func userLocation(u *dbpkg.User, def *time.Location) *time.Location {
	if u != nil && u.Timezone != "" {
		if loc, err := time.LoadLocation(u.Timezone); err == nil {
			return loc
		}
	}
	if def == nil {
		return time.UTC
	}
	return def
}

// parseDay reads a YYYY-MM-DD day in loc. An empty value means today.
func parseDay(v string, loc *time.Location, now time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		start, _ := dbpkg.DayBounds(now, loc)
		return start, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, loc)
	if err != nil {
		return time.Time{}, apperr.Validation("date must be YYYY-MM-DD")
	}
	return t, nil
}

// FormatDay renders t as YYYY-MM-DD in loc.
func FormatDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}
