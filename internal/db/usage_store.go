package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dolphinpod/internal/apperr"
)

// UsageStore persists users and usage logs for the ingestion path.
type UsageStore struct {
	db *gorm.DB
}

func NewUsageStore(db *gorm.DB) *UsageStore {
	return &UsageStore{db: db}
}

// FindUser returns the user or an apperr not-found error.
func (s *UsageStore) FindUser(ctx context.Context, id uint) (*User, error) {
	return FindUser(s.db.WithContext(ctx), id)
}

// InsertUsageLogs writes the records in a single transaction. A record
// whose (user_id, package_name, first_time_stamp) already exists is
// skipped by the database, so concurrent submissions of the same session
// cannot both land. It returns how many rows were actually inserted.
func (s *UsageStore) InsertUsageLogs(ctx context.Context, logs []UsageLog) (int, error) {
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range logs {
			res := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "user_id"}, {Name: "package_name"}, {Name: "first_time_stamp"},
				},
				DoNothing: true,
			}).Create(&logs[i])
			if res.Error != nil {
				if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
					continue
				}
				return fmt.Errorf("insert usage log %s@%d: %w", logs[i].PackageName, logs[i].FirstTimeStamp, res.Error)
			}
			if res.RowsAffected > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// FindUsageLog looks a session up by its dedup key.
func (s *UsageStore) FindUsageLog(ctx context.Context, userID uint, packageName string, firstTimeStamp int64) (*UsageLog, error) {
	var rec UsageLog
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND package_name = ? AND first_time_stamp = ?", userID, packageName, firstTimeStamp).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("usage log not found")
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListUsageLogs returns a user's logs ordered by start time. Zero from/to
// leave that side of the range open.
func (s *UsageStore) ListUsageLogs(ctx context.Context, userID uint, from, to time.Time) ([]UsageLog, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !from.IsZero() {
		q = q.Where("first_time_stamp >= ?", from.UnixMilli())
	}
	if !to.IsZero() {
		q = q.Where("first_time_stamp < ?", to.UnixMilli())
	}
	var logs []UsageLog
	if err := q.Order("first_time_stamp ASC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// FindUser loads a user by primary key.
func FindUser(db *gorm.DB, id uint) (*User, error) {
	var user User
	err := db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
