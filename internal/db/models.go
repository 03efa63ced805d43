package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB is a generic type for PostgreSQL JSONB columns.
type JSONB json.RawMessage

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return string(j), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB("{}")
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append(JSONB(nil), v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("unsupported type for JSONB: %T", value)
	}
	return nil
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("{}"), nil
	}
	return json.RawMessage(j).MarshalJSON()
}

func (j *JSONB) UnmarshalJSON(data []byte) error {
	*j = append(JSONB(nil), data...)
	return nil
}

// MustJSONB marshals v, falling back to an empty object.
func MustJSONB(v any) JSONB {
	b, err := json.Marshal(v)
	if err != nil {
		return JSONB("{}")
	}
	return JSONB(b)
}

// Review and question states.
const (
	ReviewPending  = "pending"
	ReviewReplied  = "replied"
	AnswerPending  = "pending"
	AnswerAnswered = "answered"
)

// Post lifecycle.
const (
	PostDraft     = "draft"
	PostScheduled = "scheduled"
	PostPublished = "published"
	PostFailed    = "failed"
)

// Recommendation states.
const (
	TaskPending   = "pending"
	TaskCompleted = "completed"
	TaskDismissed = "dismissed"
)

// OAuth providers. A user holds at most one token per provider.
const (
	ProviderGoogle  = "google"
	ProviderYouTube = "youtube"
)

// --- Models ---

type GMBAccount struct {
	ID          string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID      string     `gorm:"type:uuid;not null;uniqueIndex:idx_gmb_accounts_user_account" json:"user_id"`
	AccountName string     `gorm:"type:text;not null;uniqueIndex:idx_gmb_accounts_user_account" json:"account_name"`
	DisplayName string     `gorm:"type:text;not null;default:''" json:"display_name"`
	Email       string     `gorm:"type:text;not null;default:''" json:"email"`
	IsActive    bool       `gorm:"not null;default:true" json:"is_active"`
	LastSyncAt  *time.Time `gorm:"type:timestamptz" json:"last_sync_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (GMBAccount) TableName() string { return "gmb_accounts" }

type GMBLocation struct {
	ID           string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID       string     `gorm:"type:uuid;not null;uniqueIndex:idx_gmb_locations_user_location" json:"user_id"`
	GMBAccountID string     `gorm:"type:uuid;not null;index" json:"gmb_account_id"`
	LocationName string     `gorm:"type:text;not null;uniqueIndex:idx_gmb_locations_user_location" json:"location_name"`
	Title        string     `gorm:"type:text;not null;default:''" json:"title"`
	Address      string     `gorm:"type:text;not null;default:''" json:"address"`
	Phone        string     `gorm:"type:text;not null;default:''" json:"phone"`
	Website      string     `gorm:"type:text;not null;default:''" json:"website"`
	Category     string     `gorm:"type:text;not null;default:''" json:"category"`
	MapsURI      string     `gorm:"type:text;not null;default:''" json:"maps_uri"`
	Rating       float64    `gorm:"not null;default:0" json:"rating"`
	ReviewCount  int        `gorm:"not null;default:0" json:"review_count"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	Metadata     JSONB      `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	LastSyncedAt *time.Time `gorm:"type:timestamptz" json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (GMBLocation) TableName() string { return "gmb_locations" }

type GMBReview struct {
	ID               string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID           string     `gorm:"type:uuid;not null;uniqueIndex:idx_gmb_reviews_user_review" json:"user_id"`
	LocationID       string     `gorm:"type:uuid;not null;index" json:"location_id"`
	ReviewID         string     `gorm:"type:text;not null;uniqueIndex:idx_gmb_reviews_user_review" json:"review_id"`
	ReviewerName     string     `gorm:"type:text;not null;default:''" json:"reviewer_name"`
	ReviewerPhotoURL string     `gorm:"type:text;not null;default:''" json:"reviewer_photo_url"`
	Rating           int        `gorm:"not null" json:"rating"`
	Comment          string     `gorm:"type:text;not null;default:''" json:"comment"`
	ReviewTime       time.Time  `gorm:"type:timestamptz;not null" json:"review_time"`
	ReplyText        *string    `gorm:"type:text" json:"reply_text,omitempty"`
	ReplyTime        *time.Time `gorm:"type:timestamptz" json:"reply_time,omitempty"`
	Status           string     `gorm:"type:text;not null;default:'pending'" json:"status"`
	Sentiment        string     `gorm:"type:text;not null;default:'neutral'" json:"sentiment"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (GMBReview) TableName() string { return "gmb_reviews" }

type GMBPost struct {
	ID           string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID       string     `gorm:"type:uuid;not null;index;uniqueIndex:idx_gmb_posts_user_post" json:"user_id"`
	LocationID   string     `gorm:"type:uuid;not null;index" json:"location_id"`
	PostName     *string    `gorm:"type:text;uniqueIndex:idx_gmb_posts_user_post" json:"post_name,omitempty"`
	TopicType    string     `gorm:"type:text;not null;default:'STANDARD'" json:"topic_type"`
	Summary      string     `gorm:"type:text;not null" json:"summary"`
	MediaURL     string     `gorm:"type:text;not null;default:''" json:"media_url"`
	CTAType      string     `gorm:"column:cta_type;type:text;not null;default:''" json:"cta_type"`
	CTAURL       string     `gorm:"column:cta_url;type:text;not null;default:''" json:"cta_url"`
	EventTitle   string     `gorm:"type:text;not null;default:''" json:"event_title"`
	EventStart   *time.Time `gorm:"type:timestamptz" json:"event_start,omitempty"`
	EventEnd     *time.Time `gorm:"type:timestamptz" json:"event_end,omitempty"`
	Status       string     `gorm:"type:text;not null;default:'draft'" json:"status"`
	ScheduledAt  *time.Time `gorm:"type:timestamptz;index" json:"scheduled_at,omitempty"`
	PublishedAt  *time.Time `gorm:"type:timestamptz" json:"published_at,omitempty"`
	ErrorMessage string     `gorm:"type:text;not null;default:''" json:"error_message,omitempty"`
	SearchURL    string     `gorm:"type:text;not null;default:''" json:"search_url,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (GMBPost) TableName() string { return "gmb_posts" }

type GMBQuestion struct {
	ID           string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID       string     `gorm:"type:uuid;not null;uniqueIndex:idx_gmb_questions_user_question" json:"user_id"`
	LocationID   string     `gorm:"type:uuid;not null;index" json:"location_id"`
	QuestionName string     `gorm:"type:text;not null;uniqueIndex:idx_gmb_questions_user_question" json:"question_name"`
	Text         string     `gorm:"type:text;not null" json:"text"`
	AuthorName   string     `gorm:"type:text;not null;default:''" json:"author_name"`
	UpvoteCount  int        `gorm:"not null;default:0" json:"upvote_count"`
	AnswerText   *string    `gorm:"type:text" json:"answer_text,omitempty"`
	AnswerStatus string     `gorm:"type:text;not null;default:'pending'" json:"answer_status"`
	AskedAt      time.Time  `gorm:"type:timestamptz;not null" json:"asked_at"`
	AnsweredAt   *time.Time `gorm:"type:timestamptz" json:"answered_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (GMBQuestion) TableName() string { return "gmb_questions" }

type GMBMedia struct {
	ID           string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID       string    `gorm:"type:uuid;not null;uniqueIndex:idx_gmb_media_user_media" json:"user_id"`
	LocationID   string    `gorm:"type:uuid;not null;index" json:"location_id"`
	MediaName    string    `gorm:"type:text;not null;uniqueIndex:idx_gmb_media_user_media" json:"media_name"`
	MediaFormat  string    `gorm:"type:text;not null;default:'PHOTO'" json:"media_format"`
	Category     string    `gorm:"type:text;not null;default:''" json:"category"`
	GoogleURL    string    `gorm:"type:text;not null;default:''" json:"google_url"`
	ThumbnailURL string    `gorm:"type:text;not null;default:''" json:"thumbnail_url"`
	StoragePath  string    `gorm:"type:text;not null;default:''" json:"storage_path,omitempty"`
	CreateTime   time.Time `gorm:"type:timestamptz;not null" json:"create_time"`
	CreatedAt    time.Time `json:"created_at"`
}

func (GMBMedia) TableName() string { return "gmb_media" }

type OAuthToken struct {
	ID              string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID          string     `gorm:"type:uuid;not null;uniqueIndex:idx_oauth_tokens_user_provider" json:"user_id"`
	Provider        string     `gorm:"type:text;not null;uniqueIndex:idx_oauth_tokens_user_provider" json:"provider"`
	EncryptedTokens *string    `gorm:"type:text" json:"-"`
	KeyVersion      int        `gorm:"not null;default:1" json:"key_version"`
	ExpiresAt       *time.Time `gorm:"type:timestamptz" json:"expires_at,omitempty"`
	AccountRef      string     `gorm:"type:text;not null;default:''" json:"account_ref"`
	Metadata        JSONB      `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (OAuthToken) TableName() string { return "oauth_tokens" }

type OAuthState struct {
	State      string    `gorm:"primaryKey;type:text" json:"state"`
	UserID     string    `gorm:"type:uuid;not null" json:"user_id"`
	Provider   string    `gorm:"type:text;not null" json:"provider"`
	RedirectTo string    `gorm:"type:text;not null;default:''" json:"redirect_to"`
	ExpiresAt  time.Time `gorm:"type:timestamptz;not null;index" json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (OAuthState) TableName() string { return "oauth_states" }

type ActivityLog struct {
	ID           string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID       string    `gorm:"type:uuid;not null;index" json:"user_id"`
	ActivityType string    `gorm:"type:text;not null" json:"activity_type"`
	Message      string    `gorm:"type:text;not null" json:"message"`
	Metadata     JSONB     `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (ActivityLog) TableName() string { return "activity_logs" }

type ClientProfile struct {
	UserID                string    `gorm:"primaryKey;type:uuid" json:"user_id"`
	BusinessName          string    `gorm:"type:text;not null;default:''" json:"business_name"`
	ContactEmail          string    `gorm:"type:text;not null;default:''" json:"contact_email"`
	Timezone              string    `gorm:"type:text;not null;default:'UTC'" json:"timezone"`
	Language              string    `gorm:"type:text;not null;default:'en'" json:"language"`
	NotifyNegativeReviews bool      `gorm:"not null" json:"notify_negative_reviews"`
	WeeklyDigest          bool      `gorm:"not null" json:"weekly_digest"`
	Preferences           JSONB     `gorm:"type:jsonb;default:'{}'" json:"preferences"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (ClientProfile) TableName() string { return "client_profiles" }

type WeeklyTaskRecommendation struct {
	ID          string     `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID      string     `gorm:"type:uuid;not null;uniqueIndex:idx_weekly_tasks_unique" json:"user_id"`
	LocationID  string     `gorm:"type:text;not null;default:'';uniqueIndex:idx_weekly_tasks_unique" json:"location_id"`
	WeekStart   time.Time  `gorm:"type:date;not null;uniqueIndex:idx_weekly_tasks_unique" json:"week_start"`
	TaskType    string     `gorm:"type:text;not null;uniqueIndex:idx_weekly_tasks_unique" json:"task_type"`
	Title       string     `gorm:"type:text;not null" json:"title"`
	Description string     `gorm:"type:text;not null;default:''" json:"description"`
	Priority    string     `gorm:"type:text;not null;default:'medium'" json:"priority"`
	Status      string     `gorm:"type:text;not null;default:'pending'" json:"status"`
	CompletedAt *time.Time `gorm:"type:timestamptz" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (WeeklyTaskRecommendation) TableName() string { return "weekly_task_recommendations" }

type RateLimitCounter struct {
	Key         string    `gorm:"primaryKey;type:text" json:"key"`
	WindowStart time.Time `gorm:"primaryKey;type:timestamptz" json:"window_start"`
	Count       int       `gorm:"not null;default:0" json:"count"`
}

func (RateLimitCounter) TableName() string { return "rate_limit_counters" }

// AllModels lists every table managed by Migrate.
func AllModels() []any {
	return []any{
		&GMBAccount{}, &GMBLocation{}, &GMBReview{}, &GMBPost{}, &GMBQuestion{},
		&GMBMedia{}, &OAuthToken{}, &OAuthState{}, &ActivityLog{}, &ClientProfile{},
		&WeeklyTaskRecommendation{}, &RateLimitCounter{},
	}
}
