package db

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"dolphinpod/internal/apperr"
)

// FindUserByEmail returns the user or an apperr not-found error.
func FindUserByEmail(db *gorm.DB, email string) (*User, error) {
	var user User
	err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetOrCreateUser returns the account for email, creating it on first
// login. The nickname defaults to the display name, else the email's
// local part, with a numeric suffix when already taken. created reports
// whether a new row was written.
func GetOrCreateUser(db *gorm.DB, email, name, picture string) (*User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, false, apperr.Validation("email is required")
	}

	existing, err := FindUserByEmail(db, email)
	if err == nil {
		return existing, false, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, false, err
	}

	base := strings.TrimSpace(name)
	if base == "" {
		base, _, _ = strings.Cut(email, "@")
	}
	if len(base) > 50 {
		base = base[:50]
	}

	nickname, err := freeNickname(db, base)
	if err != nil {
		return nil, false, err
	}
	user := &User{Email: email, Nickname: nickname, ProfileImage: picture}
	if err := db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race with a concurrent first login.
			u, ferr := FindUserByEmail(db, email)
			return u, false, ferr
		}
		return nil, false, err
	}
	return user, true, nil
}

func freeNickname(db *gorm.DB, base string) (string, error) {
	candidate := base
	for i := 2; i < 1000; i++ {
		var count int64
		if err := db.Model(&User{}).Where("nickname = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", apperr.Conflict("no free nickname for " + base)
}

// ProfileUpdate carries the user-editable fields; nil means unchanged.
type ProfileUpdate struct {
	Nickname       *string `json:"nickname"`
	ProfileImage   *string `json:"profile_image"`
	TargetTime     *int    `json:"target_time"`
	NightModeStart *string `json:"night_mode_start"`
	NightModeEnd   *string `json:"night_mode_end"`
	Timezone       *string `json:"timezone"`
}

// UpdateProfile applies the non-nil fields. Values are expected to be
// validated by the caller.
func UpdateProfile(db *gorm.DB, userID uint, upd ProfileUpdate) (*User, error) {
	changes := map[string]any{}
	if upd.Nickname != nil {
		changes["nickname"] = strings.TrimSpace(*upd.Nickname)
	}
	if upd.ProfileImage != nil {
		changes["profile_image"] = *upd.ProfileImage
	}
	if upd.TargetTime != nil {
		changes["target_time"] = *upd.TargetTime
	}
	if upd.NightModeStart != nil {
		changes["night_mode_start"] = *upd.NightModeStart
	}
	if upd.NightModeEnd != nil {
		changes["night_mode_end"] = *upd.NightModeEnd
	}
	if upd.Timezone != nil {
		changes["timezone"] = *upd.Timezone
	}

	if len(changes) > 0 {
		err := db.Model(&User{}).Where("id = ?", userID).Updates(changes).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("nickname already taken")
		}
		if err != nil {
			return nil, err
		}
	}
	return FindUser(db, userID)
}

// FindUserByNickname returns the user or an apperr not-found error.
func FindUserByNickname(db *gorm.DB, nickname string) (*User, error) {
	var user User
	err := db.Where("nickname = ?", strings.TrimSpace(nickname)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
