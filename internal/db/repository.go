package db

import (
	"github.com/go-faster/errors"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a row does not exist or belongs to another user.
var ErrNotFound = errors.New("not found")

// Repository is the tenant-scoped query surface over the dashboard tables.
// Every method takes the caller's user id and filters on it.
type Repository struct {
	db *gorm.DB
}

func NewRepository(database *gorm.DB) *Repository {
	return &Repository{db: database}
}

// DB exposes the underlying handle for health checks.
func (r *Repository) DB() *gorm.DB { return r.db }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func (p Page) apply(q *gorm.DB) *gorm.DB {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	q = q.Limit(limit)
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	return q
}
