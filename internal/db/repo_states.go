package db

import (
	"time"

	"github.com/go-faster/errors"
	"gorm.io/gorm/clause"
)

// ErrStateExpired is returned when an OAuth state exists but is too old.
var ErrStateExpired = errors.New("oauth state expired")

func (r *Repository) CreateState(st *OAuthState) error {
	return r.db.Create(st).Error
}

// ConsumeState deletes and returns the state in one statement, so a state
// can be redeemed at most once.
func (r *Repository) ConsumeState(state string, now time.Time) (*OAuthState, error) {
	var rows []OAuthState
	res := r.db.Clauses(clause.Returning{}).Where("state = ?", state).Delete(&rows)
	if res.Error != nil {
		return nil, res.Error
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	st := rows[0]
	if !now.Before(st.ExpiresAt) {
		return nil, ErrStateExpired
	}
	return &st, nil
}

// DeleteExpiredStates removes abandoned states and returns how many went.
func (r *Repository) DeleteExpiredStates(now time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", now).Delete(&OAuthState{})
	return res.RowsAffected, res.Error
}
