package db

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dolphinpod/internal/apperr"
)

// CalendarDate keeps t's calendar day and drops time and zone, so the
// stored date does not shift with the database session timezone.
func CalendarDate(t time.Time) datatypes.Date {
	y, m, d := t.Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// CheckIn answers accepted from clients.
var checkInAnswers = map[string]bool{"GOOD": true, "SOSO": true, "BAD": true}

// SaveCheckIn stores the user's answer for a day, replacing an earlier
// answer for the same day.
func SaveCheckIn(db *gorm.DB, c *CheckIn) error {
	if !checkInAnswers[c.UserAnswer] {
		return apperr.Validation("user_answer must be GOOD, SOSO or BAD")
	}
	c.IsAnswered = true
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"generated_question", "user_answer", "user_answer_text", "context", "is_answered", "is_text_generated",
		}),
	}).Create(c).Error
}

func ListCheckIns(db *gorm.DB, userID uint, from, to time.Time) ([]CheckIn, error) {
	q := db.Where("user_id = ?", userID)
	if !from.IsZero() {
		q = q.Where("date >= ?", CalendarDate(from))
	}
	if !to.IsZero() {
		q = q.Where("date < ?", CalendarDate(to))
	}
	var out []CheckIn
	err := q.Order("date DESC").Find(&out).Error
	return out, err
}

// FindDailyReport loads the report for a user's local day.
func FindDailyReport(db *gorm.DB, userID uint, day time.Time) (*DailyReport, error) {
	var r DailyReport
	err := db.Where("user_id = ? AND date = ?", userID, CalendarDate(day)).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("daily report not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveDailyReportContent stores generated content, creating the report
// row if the rollup has not produced one yet.
func SaveDailyReportContent(db *gorm.DB, userID uint, day time.Time, content map[string]any) error {
	row := DailyReport{UserID: userID, Date: CalendarDate(day), Content: datatypes.JSONMap(content)}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"content"}),
	}).Create(&row).Error
}

// ParseISOWeek parses "2025-W09" and returns the Monday starting it.
func ParseISOWeek(v string, loc *time.Location) (time.Time, error) {
	var year, week int
	if _, err := fmt.Sscanf(v, "%4d-W%2d", &year, &week); err != nil || week < 1 || week > 53 {
		return time.Time{}, apperr.Validation(fmt.Sprintf("week %q must look like 2025-W09", v))
	}
	// Jan 4th is always in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset+(week-1)*7)
	if y, w := monday.ISOWeek(); y != year || w != week {
		return time.Time{}, apperr.Validation(fmt.Sprintf("week %q does not exist", v))
	}
	// Sscanf stops at the last verb, so trailing text and unpadded weeks
	// only show up when the label is rendered back.
	if ISOWeekLabel(monday) != v {
		return time.Time{}, apperr.Validation(fmt.Sprintf("week %q must look like 2025-W09", v))
	}
	return monday, nil
}

// ISOWeekLabel renders t's ISO week as "2025-W09".
func ISOWeekLabel(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

// BuildWeeklyReport averages the daily reports of the ISO week starting
// at monday and stores the result. Days without a report count as zero.
func BuildWeeklyReport(db *gorm.DB, userID uint, monday time.Time) (*WeeklyReport, error) {
	var days []DailyReport
	err := db.Where("user_id = ? AND date >= ? AND date < ?", userID,
		CalendarDate(monday), CalendarDate(monday.AddDate(0, 0, 7))).
		Find(&days).Error
	if err != nil {
		return nil, err
	}

	var total, night float64
	categories := map[string]float64{}
	for _, d := range days {
		total += float64(d.TotalTime)
		night += float64(d.LateNightUsage)
		for k, v := range d.CategoryUsage {
			categories[k] += toFloat(v)
		}
	}
	avgCats := datatypes.JSONMap{}
	for k, v := range categories {
		avgCats[k] = v / 7
	}

	row := WeeklyReport{
		UserID:            userID,
		DateWeek:          ISOWeekLabel(monday),
		TotalTimeAvg:      total / 7,
		LateNightUsageAvg: night / 7,
		CategoryUsageAvg:  avgCats,
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "date_week"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_time_avg", "late_night_usage_avg", "category_usage_avg"}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func CreateCalendarEvent(db *gorm.DB, ev *CalendarEvent) error {
	if ev.Title == "" {
		return apperr.Validation("title is required")
	}
	if ev.Category == "" {
		ev.Category = "Uncategorized"
	}
	return db.Create(ev).Error
}

func ListCalendarEvents(db *gorm.DB, userID uint) ([]CalendarEvent, error) {
	var out []CalendarEvent
	err := db.Where("user_id = ?", userID).Order("id DESC").Find(&out).Error
	return out, err
}
