package db

import (
	"strings"
	"time"

	"gorm.io/gorm/clause"
)

// ReviewFilter narrows ListReviews. Zero values mean "any".
type ReviewFilter struct {
	LocationID string `json:"location_id"`
	Status     string `json:"status"`
	Rating     int    `json:"rating"`
	Page
}

// ExistingReviewIDs returns the Google review ids already stored for a location.
func (r *Repository) ExistingReviewIDs(userID, locationID string) (map[string]bool, error) {
	var ids []string
	if err := r.db.Model(&GMBReview{}).
		Where("user_id = ? AND location_id = ?", userID, locationID).
		Pluck("review_id", &ids).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	return seen, nil
}

// UpsertReviews stores synced reviews keyed by (user_id, review_id).
// Status is derived from the reply so that "replied" always carries text.
func (r *Repository) UpsertReviews(reviews []GMBReview) error {
	if len(reviews) == 0 {
		return nil
	}
	for i := range reviews {
		reviews[i].Status = reviewStatus(reviews[i].ReplyText)
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "review_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"reviewer_name", "reviewer_photo_url", "rating", "comment", "review_time",
			"reply_text", "reply_time", "status", "sentiment", "updated_at",
		}),
	}).CreateInBatches(reviews, 100).Error
}

func reviewStatus(reply *string) string {
	if reply != nil && strings.TrimSpace(*reply) != "" {
		return ReviewReplied
	}
	return ReviewPending
}

// ListReviews returns a page of reviews, newest first, and the filtered total.
func (r *Repository) ListReviews(userID string, f ReviewFilter) ([]GMBReview, int64, error) {
	q := r.db.Model(&GMBReview{}).Where("user_id = ?", userID)
	if f.LocationID != "" {
		q = q.Where("location_id = ?", f.LocationID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Rating > 0 {
		q = q.Where("rating = ?", f.Rating)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reviews []GMBReview
	if err := f.Page.apply(q.Order("review_time DESC")).Find(&reviews).Error; err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

// ReviewsSince returns every review of a location newer than since.
// An empty locationID spans all of the user's locations.
func (r *Repository) ReviewsSince(userID, locationID string, since time.Time) ([]GMBReview, error) {
	q := r.db.Where("user_id = ? AND review_time >= ?", userID, since)
	if locationID != "" {
		q = q.Where("location_id = ?", locationID)
	}
	var reviews []GMBReview
	err := q.Order("review_time").Find(&reviews).Error
	return reviews, err
}

// PendingReviews returns unreplied reviews for a location, oldest first.
func (r *Repository) PendingReviews(userID, locationID string) ([]GMBReview, error) {
	var reviews []GMBReview
	err := r.db.Where("user_id = ? AND location_id = ? AND status = ?", userID, locationID, ReviewPending).
		Order("review_time").Find(&reviews).Error
	return reviews, err
}

func (r *Repository) GetReview(userID, id string) (*GMBReview, error) {
	var rev GMBReview
	if err := r.db.Where("user_id = ? AND id = ?", userID, id).First(&rev).Error; err != nil {
		return nil, notFound(err)
	}
	return &rev, nil
}

func (r *Repository) SetReviewReply(userID, id, text string, at time.Time) error {
	return r.updateReview(userID, id, map[string]any{
		"reply_text": text,
		"reply_time": at,
		"status":     ReviewReplied,
		"updated_at": at,
	})
}

func (r *Repository) ClearReviewReply(userID, id string, at time.Time) error {
	return r.updateReview(userID, id, map[string]any{
		"reply_text": nil,
		"reply_time": nil,
		"status":     ReviewPending,
		"updated_at": at,
	})
}

func (r *Repository) updateReview(userID, id string, fields map[string]any) error {
	res := r.db.Model(&GMBReview{}).Where("user_id = ? AND id = ?", userID, id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
