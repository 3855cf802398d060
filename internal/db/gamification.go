package db

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
)

// Character unlock rules.
const (
	UnlockCoin        = "coin"
	UnlockXP          = "xp"
	UnlockAchievement = "achievement"
)

func ListCharacters(db *gorm.DB) ([]Character, error) {
	var out []Character
	err := db.Order("id ASC").Find(&out).Error
	return out, err
}

func ListUserCharacters(db *gorm.DB, userID uint) ([]UserCharacter, error) {
	var out []UserCharacter
	err := db.Preload("Character").Where("user_id = ?", userID).Order("acquired_at ASC").Find(&out).Error
	return out, err
}

// AcquireCharacter unlocks a character for the user. Coin characters
// charge UnlockValue coins; xp characters need at least UnlockValue XP;
// achievement characters need the achievement whose id is UnlockValue.
func AcquireCharacter(db *gorm.DB, userID, characterID uint) (*UserCharacter, error) {
	var owned *UserCharacter
	err := db.Transaction(func(tx *gorm.DB) error {
		user, err := FindUser(tx, userID)
		if err != nil {
			return err
		}
		var ch Character
		if err := tx.First(&ch, characterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("character not found")
			}
			return err
		}

		var count int64
		if err := tx.Model(&UserCharacter{}).Where("user_id = ? AND character_id = ?", userID, characterID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.Conflict("character already owned")
		}

		switch ch.UnlockType {
		case UnlockCoin:
			if user.Coin < ch.UnlockValue {
				return apperr.Forbidden("not enough coins")
			}
			res := tx.Model(&User{}).
				Where("id = ? AND coin >= ?", userID, ch.UnlockValue).
				Update("coin", gorm.Expr("coin - ?", ch.UnlockValue))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return apperr.Forbidden("not enough coins")
			}
		case UnlockXP:
			if user.CurrentXP < ch.UnlockValue {
				return apperr.Forbidden("not enough xp")
			}
		case UnlockAchievement:
			var has int64
			if err := tx.Model(&UserAchievement{}).
				Where("user_id = ? AND achievement_id = ?", userID, ch.UnlockValue).
				Count(&has).Error; err != nil {
				return err
			}
			if has == 0 {
				return apperr.Forbidden("required achievement missing")
			}
		}

		uc := UserCharacter{UserID: userID, CharacterID: ch.ID, AcquiredAt: time.Now().UTC(), Character: ch}
		if err := tx.Omit("Character").Create(&uc).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflict("character already owned")
			}
			return err
		}
		owned = &uc
		return nil
	})
	return owned, err
}

// EquipCharacter sets the user's active character; it must be owned.
func EquipCharacter(db *gorm.DB, userID, characterID uint) error {
	var count int64
	if err := db.Model(&UserCharacter{}).Where("user_id = ? AND character_id = ?", userID, characterID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return apperr.Forbidden("character not owned")
	}
	return db.Model(&User{}).Where("id = ?", userID).Update("equipped_character_id", characterID).Error
}

func ListUserAchievements(db *gorm.DB, userID uint) ([]UserAchievement, error) {
	var out []UserAchievement
	err := db.Preload("Achievement").Where("user_id = ?", userID).Order("achieved_at ASC").Find(&out).Error
	return out, err
}

// GrantAchievement records the achievement for the user. Granting twice
// is a conflict.
func GrantAchievement(db *gorm.DB, userID, achievementID uint) (*UserAchievement, error) {
	if _, err := FindUser(db, userID); err != nil {
		return nil, err
	}
	var a Achievement
	if err := db.First(&a, achievementID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("achievement not found")
		}
		return nil, err
	}
	ua := UserAchievement{UserID: userID, AchievementID: a.ID, AchievedAt: time.Now().UTC(), Achievement: a}
	if err := db.Omit("Achievement").Create(&ua).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("achievement already granted")
		}
		return nil, err
	}
	return &ua, nil
}

func ListAchievements(db *gorm.DB) ([]Achievement, error) {
	var out []Achievement
	err := db.Order("id").Find(&out).Error
	return out, err
}
