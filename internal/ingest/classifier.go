// Package ingest validates device usage batches, tags each session with
// its night-mode flag and stores the sessions that are new.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
	"dolphinpod/internal/events"
	"dolphinpod/internal/metrics"
	"dolphinpod/internal/nightmode"
)

const defaultCategory = "Uncategorized"

// Store is the persistence the classifier needs. InsertUsageLogs must skip
// rows whose dedup key already exists, set ID on the rows it inserted and
// report how many that was.
type Store interface {
	FindUser(ctx context.Context, id uint) (*dbpkg.User, error)
	InsertUsageLogs(ctx context.Context, logs []dbpkg.UsageLog) (int, error)
}

// Session is one foreground-usage interval as sent by the device.
// Timestamps stay raw so malformed values surface as validation errors
// naming the offending record.
type Session struct {
	PackageName string `json:"package_name"`
	AppName     string `json:"app_name"`
	UsageTime   int64  `json:"usage_time"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	UnlockCount int    `json:"unlock_count"`
	Category    string `json:"category,omitempty"`

	// IsNightMode is accepted for compatibility and ignored; the flag is
	// always computed here.
	IsNightMode *bool `json:"is_night_mode,omitempty"`
}

// Batch is one submission. UnlockCount, when set, belongs to the first
// session of the batch.
type Batch struct {
	Logs        []Session `json:"logs"`
	UnlockCount *int      `json:"unlock_count,omitempty"`
}

type Result struct {
	Submitted int `json:"submitted"`
	Accepted  int `json:"accepted"`
}

// Defaults apply to users without their own night window or timezone.
type Defaults struct {
	Window   nightmode.Window
	Location *time.Location
}

type Classifier struct {
	store     Store
	publisher events.Publisher
	defaults  Defaults
	logger    zerolog.Logger
	now       func() time.Time
}

func NewClassifier(store Store, publisher events.Publisher, defaults Defaults, logger zerolog.Logger) *Classifier {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if defaults.Location == nil {
		defaults.Location = time.UTC
	}
	return &Classifier{
		store:     store,
		publisher: publisher,
		defaults:  defaults,
		logger:    logger.With().Str("component", "ingest").Logger(),
		now:       time.Now,
	}
}

type dedupKey struct {
	pkg   string
	start int64
}

// Ingest processes a batch for an already authenticated user. An unknown
// user or any invalid record rejects the whole batch before anything is
// written. Sessions already stored, or repeated within the batch, are
// skipped and only show up as the gap between Submitted and Accepted.
func (c *Classifier) Ingest(ctx context.Context, userID uint, batch Batch) (Result, error) {
	user, err := c.store.FindUser(ctx, userID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			metrics.IngestBatches.WithLabelValues("not_found").Inc()
		} else {
			metrics.IngestBatches.WithLabelValues("error").Inc()
		}
		return Result{}, err
	}
	if len(batch.Logs) == 0 {
		metrics.IngestBatches.WithLabelValues("invalid").Inc()
		return Result{}, apperr.Validation("no logs provided")
	}

	window, loc := c.settingsFor(user)

	records := make([]dbpkg.UsageLog, 0, len(batch.Logs))
	seen := make(map[dedupKey]struct{}, len(batch.Logs))
	for i, s := range batch.Logs {
		rec, err := c.normalize(i, s, user.ID, window, loc)
		if err != nil {
			metrics.IngestBatches.WithLabelValues("invalid").Inc()
			return Result{}, err
		}
		if i == 0 && rec.UnlockCount == 0 && batch.UnlockCount != nil {
			rec.UnlockCount = *batch.UnlockCount
		}

		key := dedupKey{pkg: rec.PackageName, start: rec.FirstTimeStamp}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		records = append(records, rec)
	}

	accepted, err := c.store.InsertUsageLogs(ctx, records)
	if err != nil {
		metrics.IngestBatches.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("store usage logs: %w", err)
	}
	night := 0
	for _, r := range records {
		if r.ID != 0 && r.IsNightMode {
			night++
		}
	}

	res := Result{Submitted: len(batch.Logs), Accepted: accepted}
	metrics.IngestBatches.WithLabelValues("ok").Inc()
	metrics.UsageRecords.WithLabelValues("accepted").Add(float64(res.Accepted))
	metrics.UsageRecords.WithLabelValues("duplicate").Add(float64(res.Submitted - res.Accepted))
	metrics.NightModeRecords.Add(float64(night))

	c.logger.Info().
		Uint("user_id", user.ID).
		Int("submitted", res.Submitted).
		Int("accepted", res.Accepted).
		Str("night_window", window.String()).
		Str("timezone", loc.String()).
		Msg("usage batch ingested")

	if res.Accepted > 0 {
		ev := events.UsageIngested{
			UserID:    user.ID,
			Submitted: res.Submitted,
			Accepted:  res.Accepted,
			NightMode: night,
			At:        c.now().UTC(),
		}
		if err := c.publisher.PublishUsageIngested(ctx, ev); err != nil {
			c.logger.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to publish usage event")
		}
	}

	return res, nil
}

func (c *Classifier) normalize(i int, s Session, userID uint, window nightmode.Window, loc *time.Location) (dbpkg.UsageLog, error) {
	pkg := strings.TrimSpace(s.PackageName)
	if pkg == "" {
		return dbpkg.UsageLog{}, apperr.Validation(fmt.Sprintf("logs[%d]: package_name is required", i))
	}
	start, err := ParseTimestamp(s.StartTime, loc)
	if err != nil {
		return dbpkg.UsageLog{}, apperr.Validation(fmt.Sprintf("logs[%d]: start_time: %v", i, err))
	}
	end, err := ParseTimestamp(s.EndTime, loc)
	if err != nil {
		return dbpkg.UsageLog{}, apperr.Validation(fmt.Sprintf("logs[%d]: end_time: %v", i, err))
	}
	if end.Before(start) {
		return dbpkg.UsageLog{}, apperr.Validation(fmt.Sprintf("logs[%d]: end_time is before start_time", i))
	}
	if s.UsageTime < 0 {
		return dbpkg.UsageLog{}, apperr.Validation(fmt.Sprintf("logs[%d]: usage_time must not be negative", i))
	}

	category := strings.TrimSpace(s.Category)
	if category == "" {
		category = defaultCategory
	}

	return dbpkg.UsageLog{
		UserID:         userID,
		PackageName:    pkg,
		AppName:        s.AppName,
		FirstTimeStamp: start.UnixMilli(),
		LastTimeStamp:  end.UnixMilli(),
		UsageDuration:  s.UsageTime,
		UnlockCount:    s.UnlockCount,
		Category:       category,
		IsNightMode:    window.ContainsTime(start, loc),
	}, nil
}

// settingsFor resolves the user's night window and timezone, falling back
// to the defaults when the stored values are missing or unusable.
func (c *Classifier) settingsFor(user *dbpkg.User) (nightmode.Window, *time.Location) {
	window := c.defaults.Window
	if user.NightModeStart != "" && user.NightModeEnd != "" {
		w, err := nightmode.ParseWindow(user.NightModeStart, user.NightModeEnd)
		if err != nil {
			c.logger.Warn().Err(err).Uint("user_id", user.ID).Msg("stored night window is invalid, using default")
		} else {
			window = w
		}
	}

	loc := c.defaults.Location
	if user.Timezone != "" {
		l, err := time.LoadLocation(user.Timezone)
		if err != nil {
			c.logger.Warn().Err(err).Uint("user_id", user.ID).Str("timezone", user.Timezone).Msg("stored timezone is invalid, using default")
		} else {
			loc = l
		}
	}
	return window, loc
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 timestamps. Timestamps without an offset
// are read in loc.
func ParseTimestamp(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 timestamp", v)
}
