package db

// RecordActivity appends an activity log entry. Callers treat failures as
// non-fatal.
func (r *Repository) RecordActivity(userID, activityType, message string, metadata any) error {
	entry := ActivityLog{
		UserID:       userID,
		ActivityType: activityType,
		Message:      message,
		Metadata:     MustJSONB(metadata),
	}
	return r.db.Create(&entry).Error
}

// ListActivity returns the most recent entries, newest first.
func (r *Repository) ListActivity(userID string, limit int) ([]ActivityLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var entries []ActivityLog
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
