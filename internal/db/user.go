package db

import (
	"time"
)

// User is a mobile app user. Accounts are created on first Google login
// and keyed by email.
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Email        string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Nickname     string `gorm:"uniqueIndex;size:64;not null" json:"nickname"`
	ProfileImage string `gorm:"type:text" json:"profile_image"`

	// TargetTime is the daily screen-time goal in minutes.
	TargetTime int `gorm:"not null;default:0" json:"target_time"`
	CurrentXP  int `gorm:"not null;default:0" json:"current_xp"`
	Coin       int `gorm:"not null;default:0" json:"coin"`

	EquippedCharacterID *uint `json:"equipped_character_id"`

	// Night window as HH:MM, may wrap past midnight. Empty values fall
	// back to the configured default window.
	NightModeStart string `gorm:"size:5" json:"night_mode_start"`
	NightModeEnd   string `gorm:"size:5" json:"night_mode_end"`

	// Timezone is an IANA name used to read session start times and the
	// night window. Empty means the configured default.
	Timezone string `gorm:"size:64" json:"timezone"`
}

// Admin can manage the character, achievement and challenge catalogues.
// The bootstrap admin (from config) is created as a row on startup.
type Admin struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"size:255;not null"`
}
