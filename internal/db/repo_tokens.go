package db

import (
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"gorm.io/gorm/clause"
)

// TokenData is the secret part of an OAuth token, stored encrypted.
type TokenData struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// StoredToken is an oauth_tokens row with its secrets decrypted.
type StoredToken struct {
	OAuthToken
	Data TokenData
}

// SaveToken encrypts and upserts the token for (user, provider).
func (r *Repository) SaveToken(userID, provider string, data TokenData, accountRef string, metadata JSONB) error {
	plain, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshal token")
	}
	enc, err := encrypt(plain)
	if err != nil {
		return errors.Wrap(err, "encrypt token")
	}

	row := OAuthToken{
		UserID:          userID,
		Provider:        provider,
		EncryptedTokens: &enc,
		KeyVersion:      currentKeyVersion,
		AccountRef:      accountRef,
		Metadata:        metadata,
	}
	if !data.Expiry.IsZero() {
		exp := data.Expiry
		row.ExpiresAt = &exp
	}

	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"encrypted_tokens", "key_version", "expires_at", "account_ref", "metadata", "updated_at",
		}),
	}).Create(&row).Error
}

// UpdateTokenData replaces only the secrets of an existing token, keeping
// account_ref and metadata.
func (r *Repository) UpdateTokenData(userID, provider string, data TokenData) error {
	plain, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshal token")
	}
	enc, err := encrypt(plain)
	if err != nil {
		return errors.Wrap(err, "encrypt token")
	}
	fields := map[string]any{
		"encrypted_tokens": enc,
		"key_version":      currentKeyVersion,
		"expires_at":       nil,
		"updated_at":       time.Now(),
	}
	if !data.Expiry.IsZero() {
		fields["expires_at"] = data.Expiry
	}
	res := r.db.Model(&OAuthToken{}).Where("user_id = ? AND provider = ?", userID, provider).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetToken loads and decrypts the token for (user, provider).
func (r *Repository) GetToken(userID, provider string) (*StoredToken, error) {
	var row OAuthToken
	if err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	if row.EncryptedTokens == nil || *row.EncryptedTokens == "" {
		return nil, errors.Errorf("no encrypted token for provider %s", provider)
	}
	plain, err := decrypt(*row.EncryptedTokens)
	if err != nil {
		return nil, errors.Wrapf(err, "decrypt token for provider %s", provider)
	}
	st := &StoredToken{OAuthToken: row}
	if err := json.Unmarshal(plain, &st.Data); err != nil {
		return nil, errors.Wrap(err, "unmarshal token")
	}
	return st, nil
}

// ListProviders returns the providers the user has tokens for.
func (r *Repository) ListProviders(userID string) ([]string, error) {
	var providers []string
	err := r.db.Model(&OAuthToken{}).Where("user_id = ?", userID).Order("provider").Pluck("provider", &providers).Error
	return providers, err
}

func (r *Repository) DeleteToken(userID, provider string) error {
	res := r.db.Where("user_id = ? AND provider = ?", userID, provider).Delete(&OAuthToken{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
