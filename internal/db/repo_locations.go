package db

import (
	"time"

	"gorm.io/gorm/clause"

	"gmbdash/server/internal/analytics"
)

// UpsertLocation stores a synced location keyed by (user_id, location_name).
func (r *Repository) UpsertLocation(loc *GMBLocation) error {
	loc.IsActive = true
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "location_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"gmb_account_id", "title", "address", "phone", "website", "category",
			"maps_uri", "is_active", "metadata", "updated_at",
		}),
	}).Create(loc).Error
}

// ListLocations returns active locations, optionally for one account.
func (r *Repository) ListLocations(userID, accountID string) ([]GMBLocation, error) {
	q := r.db.Where("user_id = ? AND is_active = ?", userID, true)
	if accountID != "" {
		q = q.Where("gmb_account_id = ?", accountID)
	}
	var locations []GMBLocation
	err := q.Order("title").Find(&locations).Error
	return locations, err
}

func (r *Repository) GetLocation(userID, id string) (*GMBLocation, error) {
	var loc GMBLocation
	if err := r.db.Where("user_id = ? AND id = ?", userID, id).First(&loc).Error; err != nil {
		return nil, notFound(err)
	}
	return &loc, nil
}

// UpdateLocationStats records the rating summary computed during sync.
func (r *Repository) UpdateLocationStats(userID, id string, rating float64, reviewCount int, at time.Time) error {
	return r.db.Model(&GMBLocation{}).
		Where("user_id = ? AND id = ?", userID, id).
		Updates(map[string]any{
			"rating":         rating,
			"review_count":   reviewCount,
			"last_synced_at": at,
			"updated_at":     at,
		}).Error
}

// LocationStats is the dashboard summary for one location.
type LocationStats struct {
	TotalReviews        int     `json:"total_reviews"`
	AverageRating       float64 `json:"average_rating"`
	RepliedReviews      int     `json:"replied_reviews"`
	PendingReviews      int     `json:"pending_reviews"`
	ResponseRate        float64 `json:"response_rate"` // percent
	TotalPosts          int     `json:"total_posts"`
	ScheduledPosts      int     `json:"scheduled_posts"`
	UnansweredQuestions int     `json:"unanswered_questions"`
	MediaCount          int     `json:"media_count"`
}

const locationStatsSQL = `
SELECT
  (SELECT COUNT(*) FROM gmb_reviews WHERE user_id = @user AND location_id = @loc) AS total_reviews,
  (SELECT COALESCE(AVG(rating), 0) FROM gmb_reviews WHERE user_id = @user AND location_id = @loc) AS average_rating,
  (SELECT COUNT(*) FROM gmb_reviews WHERE user_id = @user AND location_id = @loc AND status = 'replied') AS replied_reviews,
  (SELECT COUNT(*) FROM gmb_reviews WHERE user_id = @user AND location_id = @loc AND status = 'pending') AS pending_reviews,
  (SELECT COUNT(*) FROM gmb_posts WHERE user_id = @user AND location_id = @loc) AS total_posts,
  (SELECT COUNT(*) FROM gmb_posts WHERE user_id = @user AND location_id = @loc AND status = 'scheduled') AS scheduled_posts,
  (SELECT COUNT(*) FROM gmb_questions WHERE user_id = @user AND location_id = @loc AND answer_status = 'pending') AS unanswered_questions,
  (SELECT COUNT(*) FROM gmb_media WHERE user_id = @user AND location_id = @loc) AS media_count`

// GetLocationStats aggregates review, post, question and media counts in a
// single round trip. The location must belong to the user.
func (r *Repository) GetLocationStats(userID, locationID string) (*LocationStats, error) {
	if _, err := r.GetLocation(userID, locationID); err != nil {
		return nil, err
	}
	var stats LocationStats
	if err := r.db.Raw(locationStatsSQL, map[string]any{"user": userID, "loc": locationID}).
		Scan(&stats).Error; err != nil {
		return nil, err
	}
	stats.AverageRating = analytics.Round2(stats.AverageRating)
	stats.ResponseRate = analytics.ResponseRate(stats.RepliedReviews, stats.TotalReviews)
	return &stats, nil
}
