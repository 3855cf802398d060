package db

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dolphinpod/internal/metrics"
)

// DayStats is the rolled-up usage of one user's local day. Durations are
// whole minutes.
type DayStats struct {
	TotalMinutes    int
	NightMinutes    int
	CategoryMinutes map[string]int
	SessionCount    int
	UnlockCount     int
}

// SummarizeDay folds a day's logs into minute totals. Seconds are summed
// before converting so short sessions still count.
func SummarizeDay(logs []UsageLog) DayStats {
	var total, night int64
	perCategory := map[string]int64{}
	stats := DayStats{CategoryMinutes: map[string]int{}, SessionCount: len(logs)}
	for _, l := range logs {
		total += l.UsageDuration
		if l.IsNightMode {
			night += l.UsageDuration
		}
		cat := l.Category
		if cat == "" {
			cat = "Uncategorized"
		}
		perCategory[cat] += l.UsageDuration
		stats.UnlockCount += l.UnlockCount
	}
	stats.TotalMinutes = int(total / 60)
	stats.NightMinutes = int(night / 60)
	for cat, secs := range perCategory {
		stats.CategoryMinutes[cat] = int(secs / 60)
	}
	return stats
}

// DayBounds returns [start, end) of the calendar day containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Rollup writes DailyReport statistics from usage logs.
type Rollup struct {
	db         *gorm.DB
	defaultLoc *time.Location
	logger     zerolog.Logger
}

func NewRollup(db *gorm.DB, defaultLoc *time.Location, logger zerolog.Logger) *Rollup {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &Rollup{db: db, defaultLoc: defaultLoc, logger: logger.With().Str("component", "rollup").Logger()}
}

func (r *Rollup) locationFor(u User) *time.Location {
	if u.Timezone != "" {
		if loc, err := time.LoadLocation(u.Timezone); err == nil {
			return loc
		}
	}
	return r.defaultLoc
}

// RollupUserDay recomputes one user's report stats for the local day that
// contains day. Generated content on an existing report is left alone.
func (r *Rollup) RollupUserDay(ctx context.Context, user User, day time.Time) (DayStats, error) {
	loc := r.locationFor(user)
	from, to := DayBounds(day, loc)

	logs, err := NewUsageStore(r.db).ListUsageLogs(ctx, user.ID, from, to)
	if err != nil {
		return DayStats{}, err
	}
	stats := SummarizeDay(logs)
	if stats.SessionCount == 0 {
		return stats, nil
	}

	categories := datatypes.JSONMap{}
	for k, v := range stats.CategoryMinutes {
		categories[k] = v
	}
	row := DailyReport{
		UserID:         user.ID,
		Date:           CalendarDate(from),
		TotalTime:      stats.TotalMinutes,
		LateNightUsage: stats.NightMinutes,
		CategoryUsage:  categories,
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_time", "late_night_usage", "category_usage"}),
	}).Create(&row).Error
	if err != nil {
		return DayStats{}, fmt.Errorf("upsert daily report for user %d: %w", user.ID, err)
	}
	return stats, nil
}

// RunDay rolls up the local day containing day for every user.
func (r *Rollup) RunDay(ctx context.Context, day time.Time) error {
	var users []User
	if err := r.db.WithContext(ctx).Select("id", "timezone").Find(&users).Error; err != nil {
		metrics.RollupRuns.WithLabelValues("error").Inc()
		return err
	}

	failed := 0
	for _, u := range users {
		if _, err := r.RollupUserDay(ctx, u, day); err != nil {
			failed++
			r.logger.Error().Err(err).Uint("user_id", u.ID).Msg("daily rollup failed")
		}
	}
	if failed > 0 {
		metrics.RollupRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("daily rollup failed for %d of %d users", failed, len(users))
	}
	metrics.RollupRuns.WithLabelValues("ok").Inc()
	r.logger.Info().Int("users", len(users)).Str("day", day.Format(time.DateOnly)).Msg("daily rollup complete")
	return nil
}

// StartRollupScheduler rolls up yesterday once at startup and then on the
// cron schedule, interpreted in the default location. Stop the returned
// cron to halt it.
func StartRollupScheduler(db *gorm.DB, schedule string, loc *time.Location, logger zerolog.Logger) (*cron.Cron, error) {
	r := NewRollup(db, loc, logger)
	c := cron.New(cron.WithLocation(r.defaultLoc))

	job := func() {
		yesterday := time.Now().In(r.defaultLoc).AddDate(0, 0, -1)
		if err := r.RunDay(context.Background(), yesterday); err != nil {
			r.logger.Warn().Err(err).Msg("scheduled rollup incomplete")
		}
	}
	if _, err := c.AddFunc(schedule, job); err != nil {
		return nil, fmt.Errorf("invalid rollup schedule %q: %w", schedule, err)
	}

	go job()
	c.Start()
	return c, nil
}
