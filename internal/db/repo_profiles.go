package db

import "gorm.io/gorm/clause"

// DefaultProfile is what a user without a stored profile sees.
func DefaultProfile(userID string) ClientProfile {
	return ClientProfile{
		UserID:                userID,
		Timezone:              "UTC",
		Language:              "en",
		NotifyNegativeReviews: true,
		WeeklyDigest:          true,
		Preferences:           JSONB("{}"),
	}
}

func (r *Repository) GetProfile(userID string) (*ClientProfile, error) {
	var p ClientProfile
	if err := r.db.Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *Repository) UpsertProfile(p *ClientProfile) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"business_name", "contact_email", "timezone", "language",
			"notify_negative_reviews", "weekly_digest", "preferences", "updated_at",
		}),
	}).Create(p).Error
}

// ListUsersWithActiveAccounts returns distinct user ids owning at least one
// active GBP account.
func (r *Repository) ListUsersWithActiveAccounts() ([]string, error) {
	var ids []string
	err := r.db.Model(&GMBAccount{}).Where("is_active = ?", true).Distinct().Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}
