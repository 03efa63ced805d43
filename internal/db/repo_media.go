package db

import (
	"time"

	"gorm.io/gorm/clause"
)

// UpsertMedia stores media items keyed by (user_id, media_name).
func (r *Repository) UpsertMedia(items []GMBMedia) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "media_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"media_format", "category", "google_url", "thumbnail_url"}),
	}).Create(&items).Error
}

func (r *Repository) CreateMedia(item *GMBMedia) error {
	return r.db.Create(item).Error
}

func (r *Repository) ListMedia(userID, locationID string, page Page) ([]GMBMedia, error) {
	q := r.db.Where("user_id = ?", userID)
	if locationID != "" {
		q = q.Where("location_id = ?", locationID)
	}
	var items []GMBMedia
	err := page.apply(q.Order("create_time DESC")).Find(&items).Error
	return items, err
}

func (r *Repository) CountMediaSince(userID, locationID string, since time.Time) (int64, error) {
	var n int64
	err := r.db.Model(&GMBMedia{}).
		Where("user_id = ? AND location_id = ? AND create_time >= ?", userID, locationID, since).
		Count(&n).Error
	return n, err
}
