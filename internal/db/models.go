package db

import (
	"time"

	"gorm.io/datatypes"
)

// UsageLog is one accepted foreground-usage session reported by a device.
// Rows are written once at ingestion and never updated.
type UsageLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`

	// (UserID, PackageName, FirstTimeStamp) identifies a session; a second
	// submission of the same triple is skipped, never overwritten.
	UserID         uint   `gorm:"uniqueIndex:idx_usage_log_dedup,priority:1;not null" json:"user_id"`
	PackageName    string `gorm:"uniqueIndex:idx_usage_log_dedup,priority:2;size:255;not null" json:"package_name"`
	FirstTimeStamp int64  `gorm:"uniqueIndex:idx_usage_log_dedup,priority:3;not null" json:"first_time_stamp"`
	LastTimeStamp  int64  `gorm:"not null" json:"last_time_stamp"`

	AppName string `gorm:"size:255" json:"app_name"`

	// UsageDuration is the caller-reported foreground time in seconds.
	UsageDuration int64  `gorm:"not null;default:0" json:"usage_duration"`
	UnlockCount   int    `gorm:"not null;default:0" json:"unlock_count"`
	Category      string `gorm:"size:64;default:Uncategorized" json:"category"`

	// IsNightMode is computed at ingestion against the owner's night window.
	IsNightMode bool `gorm:"not null;default:false" json:"is_night_mode"`
}

// Character is a collectible companion from the catalogue.
type Character struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:20;not null" json:"name"`
	ImageURL string `gorm:"type:text" json:"image_url"`

	// UnlockType names the unlock rule ("coin", "xp", "achievement");
	// UnlockValue is its threshold.
	UnlockType  string `gorm:"size:50" json:"unlock_type"`
	UnlockValue int    `gorm:"not null;default:0" json:"unlock_value"`
}

type UserCharacter struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex:idx_user_character,priority:1;not null" json:"user_id"`
	CharacterID uint      `gorm:"uniqueIndex:idx_user_character,priority:2;not null" json:"character_id"`
	AcquiredAt  time.Time `gorm:"autoCreateTime" json:"acquired_at"`

	Character Character `gorm:"foreignKey:CharacterID" json:"character"`
}

type Achievement struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"size:100" json:"title"`
	Description string `gorm:"size:255" json:"description"`
	IconURL     string `gorm:"type:text" json:"icon_url"`
}

type UserAchievement struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"uniqueIndex:idx_user_achievement,priority:1;not null" json:"user_id"`
	AchievementID uint      `gorm:"uniqueIndex:idx_user_achievement,priority:2;not null" json:"achievement_id"`
	AchievedAt    time.Time `gorm:"autoCreateTime" json:"achieved_at"`

	Achievement Achievement `gorm:"foreignKey:AchievementID" json:"achievement"`
}

// Challenge scopes. TimeScope decides an instance's end date when joined.
const (
	ScopeDaily  = "DAILY"
	ScopeWeekly = "WEEKLY"
)

// Challenge instance states.
const (
	ChallengeInProgress = "IN_PROGRESS"
	ChallengeCompleted  = "COMPLETED"
	ChallengeFailed     = "FAILED"
)

type Challenge struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"size:100;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	// ChallengeType is the measured metric, e.g. "screen_time" or "night_usage".
	ChallengeType      string `gorm:"size:50;not null" json:"challenge_type"`
	IsReusable         bool   `gorm:"default:false" json:"is_reusable"`
	DefaultTargetValue int    `gorm:"not null" json:"default_target_value"`
	TimeScope          string `gorm:"size:20;not null" json:"time_scope"`
	RewardXP           int    `gorm:"not null;default:0" json:"reward_xp"`
}

// ChallengeInstance is one user's attempt at a challenge.
type ChallengeInstance struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	ChallengeID uint      `gorm:"index;not null" json:"challenge_id"`
	Status      string    `gorm:"size:20;default:IN_PROGRESS" json:"status"`
	StartDate   time.Time `gorm:"not null" json:"start_date"`
	EndDate     time.Time `gorm:"not null" json:"end_date"`

	Challenge  Challenge            `gorm:"foreignKey:ChallengeID" json:"challenge"`
	Conditions []ChallengeCondition `gorm:"foreignKey:InstanceID" json:"conditions,omitempty"`
	Progress   []ProgressLog        `gorm:"foreignKey:InstanceID" json:"progress,omitempty"`
	Rewards    []Reward             `gorm:"foreignKey:InstanceID" json:"rewards,omitempty"`
}

type ChallengeCondition struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	InstanceID  uint   `gorm:"index;not null" json:"instance_id"`
	TargetValue int    `gorm:"not null" json:"target_value"`
	Operator    string `gorm:"size:10;default:>=" json:"operator"`
}

type ProgressLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	InstanceID   uint      `gorm:"index;not null" json:"instance_id"`
	Title        string    `gorm:"size:100" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	ProgressRate float64   `gorm:"default:0" json:"progress_rate"`
}

type Reward struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	InstanceID  uint   `gorm:"index;not null" json:"instance_id"`
	Title       string `gorm:"size:100;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	ChallengeXP int    `gorm:"default:0" json:"challenge_xp"`
}

// Friendship states.
const (
	FriendshipPending  = "PENDING"
	FriendshipAccepted = "ACCEPTED"
)

type Friendship struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	RequesterID uint      `gorm:"uniqueIndex:idx_friendship_pair,priority:1;not null" json:"requester_id"`
	ReceiverID  uint      `gorm:"uniqueIndex:idx_friendship_pair,priority:2;not null" json:"receiver_id"`
	Status      string    `gorm:"size:20;not null;default:PENDING" json:"status"`
}

// Alert is a nudge one friend sends another.
type Alert struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	ReceiverID uint      `gorm:"index;not null" json:"receiver_id"`
	SenderID   uint      `gorm:"index;not null" json:"sender_id"`
	AlertType  string    `gorm:"size:20;default:NUDGE" json:"alert_type"`
	Message    string    `gorm:"type:text;not null" json:"message"`
}

type CalendarEvent struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	UserID      uint   `gorm:"index;not null" json:"user_id"`
	Title       string `gorm:"size:100" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Category    string `gorm:"size:50;not null;default:Uncategorized" json:"category"`
}

// CheckIn is a daily self-report: the generated question and the answer.
type CheckIn struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	UserID            uint              `gorm:"uniqueIndex:idx_checkin_day,priority:1;not null" json:"user_id"`
	Date              datatypes.Date    `gorm:"uniqueIndex:idx_checkin_day,priority:2;not null" json:"date"`
	GeneratedQuestion string            `gorm:"type:text" json:"generated_question"`
	UserAnswer        string            `gorm:"size:50;not null" json:"user_answer"`
	UserAnswerText    string            `gorm:"type:text" json:"user_answer_text"`
	Context           datatypes.JSONMap `gorm:"type:json" json:"context,omitempty"`
	IsAnswered        bool              `gorm:"not null;default:false" json:"is_answered"`
	IsTextGenerated   bool              `gorm:"not null;default:false" json:"is_text_generated"`
}

// DailyReport holds the rolled-up usage of one local day and, once
// generated, the LLM-written content.
type DailyReport struct {
	ID     uint           `gorm:"primaryKey" json:"id"`
	UserID uint           `gorm:"uniqueIndex:idx_daily_report,priority:1;not null" json:"user_id"`
	Date   datatypes.Date `gorm:"uniqueIndex:idx_daily_report,priority:2;not null" json:"date"`

	Content datatypes.JSONMap `gorm:"type:json" json:"content,omitempty"`

	// Minutes.
	TotalTime      int `gorm:"not null;default:0" json:"total_time"`
	LateNightUsage int `gorm:"not null;default:0" json:"late_night_usage"`

	CategoryUsage datatypes.JSONMap `gorm:"type:json" json:"category_usage,omitempty"`
}

type WeeklyReport struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"uniqueIndex:idx_weekly_report,priority:1;not null" json:"user_id"`

	// DateWeek is the ISO week, e.g. "2025-W09".
	DateWeek    string            `gorm:"uniqueIndex:idx_weekly_report,priority:2;size:16;not null" json:"date_week"`
	ContentWeek datatypes.JSONMap `gorm:"type:json" json:"content_week,omitempty"`

	TotalTimeAvg      float64           `gorm:"default:0" json:"total_time_avg"`
	LateNightUsageAvg float64           `gorm:"default:0" json:"late_night_usage_avg"`
	CategoryUsageAvg  datatypes.JSONMap `gorm:"type:json" json:"category_usage_avg,omitempty"`
}

type RecommendedAction struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Category    string `gorm:"size:50" json:"category"`
	ActionTitle string `gorm:"size:50" json:"action_title"`
	Content     string `gorm:"type:text" json:"content"`
	Difficulty  int    `gorm:"default:1" json:"difficulty"`
}

type Recommendation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	ActionID  uint      `gorm:"index;not null" json:"action_id"`

	Action RecommendedAction `gorm:"foreignKey:ActionID" json:"action"`
}

// UserFeedback ratings.
const (
	RatingGood = "GOOD"
	RatingSoso = "SOSO"
	RatingBad  = "BAD"
)

type UserFeedback struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	RecommendationID uint   `gorm:"uniqueIndex;not null" json:"recommendation_id"`
	Rating           string `gorm:"size:20;not null" json:"rating"`
}

// AllModels lists every table AutoMigrate manages.
func AllModels() []any {
	return []any{
		&User{}, &Admin{}, &UsageLog{},
		&Character{}, &UserCharacter{}, &Achievement{}, &UserAchievement{},
		&Challenge{}, &ChallengeInstance{}, &ChallengeCondition{}, &ProgressLog{}, &Reward{},
		&Friendship{}, &Alert{},
		&CalendarEvent{}, &CheckIn{}, &DailyReport{}, &WeeklyReport{},
		&RecommendedAction{}, &Recommendation{}, &UserFeedback{},
	}
}
