package db

import (
	"errors"

	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
)

// Recommend picks a random action, restricted to category when given,
// and records it for the user.
func Recommend(db *gorm.DB, userID uint, category string) (*Recommendation, error) {
	q := db.Model(&RecommendedAction{})
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var action RecommendedAction
	err := q.Order("RANDOM()").First(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("no recommended actions available")
	}
	if err != nil {
		return nil, err
	}

	rec := Recommendation{UserID: userID, ActionID: action.ID}
	if err := db.Omit("Action").Create(&rec).Error; err != nil {
		return nil, err
	}
	rec.Action = action
	return &rec, nil
}

func ListRecommendations(db *gorm.DB, userID uint, limit int) ([]Recommendation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []Recommendation
	err := db.Preload("Action").Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// SubmitFeedback rates a recommendation the user received. Each
// recommendation takes one rating.
func SubmitFeedback(db *gorm.DB, userID, recommendationID uint, rating string) (*UserFeedback, error) {
	switch rating {
	case RatingGood, RatingSoso, RatingBad:
	default:
		return nil, apperr.Validation("rating must be GOOD, SOSO or BAD")
	}

	var count int64
	if err := db.Model(&Recommendation{}).Where("id = ? AND user_id = ?", recommendationID, userID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, apperr.NotFound("recommendation not found")
	}

	fb := UserFeedback{RecommendationID: recommendationID, Rating: rating}
	if err := db.Create(&fb).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("feedback already submitted")
		}
		return nil, err
	}
	return &fb, nil
}
