package db

import (
	"time"

	"gorm.io/gorm/clause"
)

func (r *Repository) ListPosts(userID, locationID string, page Page) ([]GMBPost, error) {
	q := r.db.Where("user_id = ?", userID)
	if locationID != "" {
		q = q.Where("location_id = ?", locationID)
	}
	var posts []GMBPost
	err := page.apply(q.Order("created_at DESC")).Find(&posts).Error
	return posts, err
}

func (r *Repository) CreatePost(post *GMBPost) error {
	return r.db.Create(post).Error
}

func (r *Repository) GetPost(userID, id string) (*GMBPost, error) {
	var post GMBPost
	if err := r.db.Where("user_id = ? AND id = ?", userID, id).First(&post).Error; err != nil {
		return nil, notFound(err)
	}
	return &post, nil
}

// UpsertRemotePosts stores posts discovered during sync, keyed by
// (user_id, post_name).
func (r *Repository) UpsertRemotePosts(posts []GMBPost) error {
	if len(posts) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "post_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"topic_type", "summary", "media_url", "cta_type", "cta_url",
			"status", "published_at", "search_url", "updated_at",
		}),
	}).Create(&posts).Error
}

func (r *Repository) MarkPostPublished(id, postName, searchURL string, at time.Time) error {
	return r.db.Model(&GMBPost{}).Where("id = ?", id).Updates(map[string]any{
		"post_name":     postName,
		"search_url":    searchURL,
		"status":        PostPublished,
		"published_at":  at,
		"error_message": "",
		"updated_at":    at,
	}).Error
}

func (r *Repository) MarkPostFailed(id, message string, at time.Time) error {
	return r.db.Model(&GMBPost{}).Where("id = ?", id).Updates(map[string]any{
		"status":        PostFailed,
		"error_message": message,
		"updated_at":    at,
	}).Error
}

func (r *Repository) DeletePost(userID, id string) error {
	res := r.db.Where("user_id = ? AND id = ?", userID, id).Delete(&GMBPost{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DuePosts returns scheduled posts whose time has come, across all users.
func (r *Repository) DuePosts(now time.Time, limit int) ([]GMBPost, error) {
	var posts []GMBPost
	err := r.db.Where("status = ? AND scheduled_at <= ?", PostScheduled, now).
		Order("scheduled_at").Limit(limit).Find(&posts).Error
	return posts, err
}

// LastPublishedAt returns the newest publish time for a location, or nil.
func (r *Repository) LastPublishedAt(userID, locationID string) (*time.Time, error) {
	var post GMBPost
	err := r.db.Select("published_at").
		Where("user_id = ? AND location_id = ? AND status = ? AND published_at IS NOT NULL", userID, locationID, PostPublished).
		Order("published_at DESC").Limit(1).Find(&post).Error
	if err != nil {
		return nil, err
	}
	return post.PublishedAt, nil
}
