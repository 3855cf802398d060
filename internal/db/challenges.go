package db

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
)

// ScopeEnd returns when an instance started at start ends for the given
// time scope: the end of that day, or seven days later for weekly.
func ScopeEnd(start time.Time, scope string) (time.Time, error) {
	switch scope {
	case ScopeDaily:
		d, _ := DayBounds(start, start.Location())
		return d.AddDate(0, 0, 1), nil
	case ScopeWeekly:
		return start.AddDate(0, 0, 7), nil
	default:
		return time.Time{}, apperr.Validation(fmt.Sprintf("unknown time scope %q", scope))
	}
}

func ListChallenges(db *gorm.DB) ([]Challenge, error) {
	var out []Challenge
	err := db.Order("id ASC").Find(&out).Error
	return out, err
}

// JoinChallenge starts an instance for the user. Without a target the
// challenge default applies. A non-reusable challenge can be joined only
// once; any challenge can have at most one instance in progress.
func JoinChallenge(db *gorm.DB, userID, challengeID uint, target *int, now time.Time) (*ChallengeInstance, error) {
	var inst *ChallengeInstance
	err := db.Transaction(func(tx *gorm.DB) error {
		var ch Challenge
		if err := tx.First(&ch, challengeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("challenge not found")
			}
			return err
		}

		q := tx.Model(&ChallengeInstance{}).Where("user_id = ? AND challenge_id = ?", userID, challengeID)
		if ch.IsReusable {
			q = q.Where("status = ?", ChallengeInProgress)
		}
		var count int64
		if err := q.Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.Conflict("challenge already joined")
		}

		end, err := ScopeEnd(now, ch.TimeScope)
		if err != nil {
			return err
		}
		goal := ch.DefaultTargetValue
		if target != nil {
			if *target <= 0 {
				return apperr.Validation("target_value must be positive")
			}
			goal = *target
		}

		row := ChallengeInstance{
			UserID:      userID,
			ChallengeID: ch.ID,
			Status:      ChallengeInProgress,
			StartDate:   now,
			EndDate:     end,
		}
		if err := tx.Omit("Challenge", "Conditions", "Progress", "Rewards").Create(&row).Error; err != nil {
			return err
		}
		cond := ChallengeCondition{InstanceID: row.ID, TargetValue: goal, Operator: "<="}
		if err := tx.Create(&cond).Error; err != nil {
			return err
		}
		row.Challenge = ch
		row.Conditions = []ChallengeCondition{cond}
		inst = &row
		return nil
	})
	return inst, err
}

// ListUserChallenges returns the user's instances, newest first. An empty
// status lists all.
func ListUserChallenges(db *gorm.DB, userID uint, status string) ([]ChallengeInstance, error) {
	q := db.Preload("Challenge").Preload("Conditions").Preload("Rewards").Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []ChallengeInstance
	err := q.Order("start_date DESC").Find(&out).Error
	return out, err
}

// ProgressEntry is one progress report on an instance.
type ProgressEntry struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	ProgressRate float64 `json:"progress_rate"`
}

// RecordProgress logs progress on the user's in-progress instance. A rate
// of 1 or more completes it and pays the challenge's XP reward; past the
// end date the instance fails instead.
func RecordProgress(db *gorm.DB, userID, instanceID uint, entry ProgressEntry, now time.Time) (*ChallengeInstance, error) {
	if entry.ProgressRate < 0 {
		return nil, apperr.Validation("progress_rate must not be negative")
	}

	var inst ChallengeInstance
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Challenge").Where("id = ? AND user_id = ?", instanceID, userID).First(&inst).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("challenge instance not found")
		}
		if err != nil {
			return err
		}
		if inst.Status != ChallengeInProgress {
			return apperr.Conflict("challenge is no longer in progress")
		}

		if now.After(inst.EndDate) {
			inst.Status = ChallengeFailed
			return tx.Model(&ChallengeInstance{}).Where("id = ?", inst.ID).Update("status", ChallengeFailed).Error
		}

		logRow := ProgressLog{
			InstanceID:   inst.ID,
			Title:        entry.Title,
			Description:  entry.Description,
			ProgressRate: entry.ProgressRate,
		}
		if err := tx.Create(&logRow).Error; err != nil {
			return err
		}
		inst.Progress = append(inst.Progress, logRow)

		if entry.ProgressRate < 1 {
			return nil
		}

		inst.Status = ChallengeCompleted
		if err := tx.Model(&ChallengeInstance{}).Where("id = ?", inst.ID).Update("status", ChallengeCompleted).Error; err != nil {
			return err
		}
		reward := Reward{
			InstanceID:  inst.ID,
			Title:       inst.Challenge.Title,
			Description: "challenge completed",
			ChallengeXP: inst.Challenge.RewardXP,
		}
		if err := tx.Create(&reward).Error; err != nil {
			return err
		}
		inst.Rewards = append(inst.Rewards, reward)
		if reward.ChallengeXP > 0 {
			return tx.Model(&User{}).Where("id = ?", userID).
				Update("current_xp", gorm.Expr("current_xp + ?", reward.ChallengeXP)).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inst, nil
}
