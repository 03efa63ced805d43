package db

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertAccount inserts or refreshes a connected GBP account, keyed by
// (user_id, account_name). The stored id is written back into acct.
func (r *Repository) UpsertAccount(acct *GMBAccount) error {
	acct.IsActive = true
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "account_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "email", "is_active", "updated_at"}),
	}).Create(acct).Error
}

func (r *Repository) ListAccounts(userID string) ([]GMBAccount, error) {
	var accounts []GMBAccount
	err := r.db.Where("user_id = ?", userID).Order("created_at").Find(&accounts).Error
	return accounts, err
}

func (r *Repository) GetAccount(userID, id string) (*GMBAccount, error) {
	var acct GMBAccount
	if err := r.db.Where("user_id = ? AND id = ?", userID, id).First(&acct).Error; err != nil {
		return nil, notFound(err)
	}
	return &acct, nil
}

// ListActiveAccounts returns active accounts across all users.
func (r *Repository) ListActiveAccounts() ([]GMBAccount, error) {
	var accounts []GMBAccount
	err := r.db.Where("is_active = ?", true).Order("user_id, created_at").Find(&accounts).Error
	return accounts, err
}

// CountActiveAccounts returns how many active accounts the user has.
func (r *Repository) CountActiveAccounts(userID string) (int64, error) {
	var n int64
	err := r.db.Model(&GMBAccount{}).Where("user_id = ? AND is_active = ?", userID, true).Count(&n).Error
	return n, err
}

func (r *Repository) TouchAccountSync(userID, id string, at time.Time) error {
	return r.db.Model(&GMBAccount{}).
		Where("user_id = ? AND id = ?", userID, id).
		Updates(map[string]any{"last_sync_at": at, "updated_at": at}).Error
}

// DeactivateAccount marks the account and its locations inactive.
func (r *Repository) DeactivateAccount(userID, id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&GMBAccount{}).
			Where("user_id = ? AND id = ?", userID, id).
			Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&GMBLocation{}).
			Where("user_id = ? AND gmb_account_id = ?", userID, id).
			Update("is_active", false).Error
	})
}
