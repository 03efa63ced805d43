package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewRepository(gdb), mock
}

func TestGetAccountNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT \* FROM "gmb_accounts" WHERE user_id = \$1 AND id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetAccount("u1", "a1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateAccount(t *testing.T) {
	t.Run("cascades to locations", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "gmb_accounts" SET "is_active"`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "gmb_locations" SET "is_active"`).WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		require.NoError(t, repo.DeactivateAccount("u1", "a1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other tenant", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "gmb_accounts" SET "is_active"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.DeactivateAccount("u2", "a1"), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListReviewsAppliesFilters(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "gmb_reviews" WHERE user_id = \$1 AND location_id = \$2 AND status = \$3 AND rating = \$4`).
		WithArgs("u1", "loc1", ReviewPending, 2).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "gmb_reviews" WHERE .* ORDER BY review_time DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "rating", "status"}).
			AddRow("r1", "u1", 2, ReviewPending))

	reviews, total, err := repo.ListReviews("u1", ReviewFilter{LocationID: "loc1", Status: ReviewPending, Rating: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, reviews, 1)
	assert.Equal(t, 2, reviews[0].Rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReviewReplyOtherTenant(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`UPDATE "gmb_reviews" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetReviewReply("u2", "r1", "thanks", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsumeState(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	cols := []string{"state", "user_id", "provider", "redirect_to", "expires_at", "created_at"}

	t.Run("valid", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`DELETE FROM "oauth_states" WHERE state = \$1 RETURNING \*`).
			WithArgs("abc").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("abc", "u1", ProviderGoogle, "/dashboard", now.Add(5*time.Minute), now))

		st, err := repo.ConsumeState("abc", now)
		require.NoError(t, err)
		assert.Equal(t, "u1", st.UserID)
		assert.Equal(t, "/dashboard", st.RedirectTo)
	})

	t.Run("expired", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`DELETE FROM "oauth_states"`).
			WillReturnRows(sqlmock.NewRows(cols).AddRow("abc", "u1", ProviderGoogle, "", now.Add(-time.Second), now))

		_, err := repo.ConsumeState("abc", now)
		assert.ErrorIs(t, err, ErrStateExpired)
	})

	t.Run("unknown or reused", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`DELETE FROM "oauth_states"`).WillReturnRows(sqlmock.NewRows(cols))

		_, err := repo.ConsumeState("abc", now)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGetTokenDecrypts(t *testing.T) {
	setupTestKey(t)
	repo, mock := newMockRepo(t)

	expiry := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	plain, err := json.Marshal(TokenData{AccessToken: "ya29.a", RefreshToken: "1//r", Expiry: expiry})
	require.NoError(t, err)
	enc, err := encrypt(plain)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "oauth_tokens" WHERE user_id = \$1 AND provider = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "provider", "encrypted_tokens", "key_version"}).
			AddRow("t1", "u1", ProviderGoogle, enc, 1))

	tok, err := repo.GetToken("u1", ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "ya29.a", tok.Data.AccessToken)
	assert.Equal(t, "1//r", tok.Data.RefreshToken)
	assert.True(t, expiry.Equal(tok.Data.Expiry))
}

func TestIncrementCounter(t *testing.T) {
	repo, mock := newMockRepo(t)
	window := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO rate_limit_counters .* RETURNING count`).
		WithArgs("user:u1", window).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.IncrementCounter("user:u1", window)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageBounds(t *testing.T) {
	repo, _ := newMockRepo(t)
	dry := repo.db.Session(&gorm.Session{DryRun: true})

	tests := []struct {
		name string
		page Page
		want int
	}{
		{"default", Page{}, defaultLimit},
		{"capped", Page{Limit: 10_000}, maxLimit},
		{"explicit", Page{Limit: 20}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var posts []GMBPost
			stmt := tt.page.apply(dry.Model(&GMBPost{})).Find(&posts).Statement
			assert.Contains(t, stmt.SQL.String(), "LIMIT")
			assert.Contains(t, stmt.Vars, tt.want)
		})
	}
}

type captured struct {
	sql  string
	vars []any
}

// newDryRepo builds a repository that renders statements without running
// them and records the last INSERT for inspection.
func newDryRepo(t *testing.T) (*Repository, *captured) {
	t.Helper()
	repo, _ := newMockRepo(t)
	c := &captured{}
	err := repo.db.Callback().Create().After("gorm:create").Register("test:capture", func(tx *gorm.DB) {
		c.sql = tx.Statement.SQL.String()
		c.vars = tx.Statement.Vars
	})
	require.NoError(t, err)
	return NewRepository(repo.db.Session(&gorm.Session{DryRun: true})), c
}

func TestUpsertProfileKeepsDisabledFlags(t *testing.T) {
	repo, c := newDryRepo(t)

	p := DefaultProfile("u1")
	p.NotifyNegativeReviews = false
	p.WeeklyDigest = false
	require.NoError(t, repo.UpsertProfile(&p))

	assert.Contains(t, c.sql, `"notify_negative_reviews"`)
	assert.Contains(t, c.sql, `"weekly_digest"`)
	assert.Contains(t, c.sql, `ON CONFLICT ("user_id") DO UPDATE`)
	assert.Contains(t, c.vars, false)
	assert.NotContains(t, c.vars, true)
	assert.False(t, p.NotifyNegativeReviews)
	assert.False(t, p.WeeklyDigest)
}

func TestUpsertRemotePostsScopedToUser(t *testing.T) {
	repo, c := newDryRepo(t)

	name := "accounts/1/locations/2/localPosts/3"
	require.NoError(t, repo.UpsertRemotePosts([]GMBPost{
		{UserID: "u1", LocationID: "loc1", PostName: &name, Summary: "Open late", Status: PostPublished},
	}))
	assert.Contains(t, c.sql, `ON CONFLICT ("user_id","post_name") DO UPDATE`)
}

func TestUpsertReviewsDerivesStatus(t *testing.T) {
	repo, c := newDryRepo(t)

	blank, reply := "   ", "Thanks!"
	reviews := []GMBReview{
		{UserID: "u1", ReviewID: "r1", Rating: 5, ReplyText: &reply, Status: ReviewPending},
		{UserID: "u1", ReviewID: "r2", Rating: 2, ReplyText: &blank, Status: ReviewReplied},
		{UserID: "u1", ReviewID: "r3", Rating: 4},
	}
	require.NoError(t, repo.UpsertReviews(reviews))

	assert.Equal(t, ReviewReplied, reviews[0].Status)
	assert.Equal(t, ReviewPending, reviews[1].Status)
	assert.Equal(t, ReviewPending, reviews[2].Status)
	assert.Contains(t, c.sql, `ON CONFLICT ("user_id","review_id") DO UPDATE`)
}

func TestUpsertLocationWritesBackID(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`INSERT INTO "gmb_locations" .* ON CONFLICT \("user_id","location_name"\) DO UPDATE SET .* RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("loc-uuid"))

	loc := &GMBLocation{UserID: "u1", GMBAccountID: "a1", LocationName: "locations/2", Title: "Cafe"}
	require.NoError(t, repo.UpsertLocation(loc))
	assert.Equal(t, "loc-uuid", loc.ID)
	assert.True(t, loc.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLocationStats(t *testing.T) {
	locCols := []string{"id", "user_id", "location_name"}
	statCols := []string{
		"total_reviews", "average_rating", "replied_reviews", "pending_reviews",
		"total_posts", "scheduled_posts", "unanswered_questions", "media_count",
	}

	t.Run("percent and rounded rating", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`SELECT \* FROM "gmb_locations" WHERE user_id = \$1 AND id = \$2`).
			WillReturnRows(sqlmock.NewRows(locCols).AddRow("loc1", "u1", "locations/2"))
		mock.ExpectQuery(`SELECT\s+\(SELECT COUNT\(\*\) FROM gmb_reviews`).
			WillReturnRows(sqlmock.NewRows(statCols).AddRow(3, 4.333333333, 2, 1, 5, 1, 2, 7))

		stats, err := repo.GetLocationStats("u1", "loc1")
		require.NoError(t, err)
		assert.Equal(t, 66.67, stats.ResponseRate)
		assert.Equal(t, 4.33, stats.AverageRating)
		assert.Equal(t, 2, stats.UnansweredQuestions)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no reviews", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`SELECT \* FROM "gmb_locations"`).
			WillReturnRows(sqlmock.NewRows(locCols).AddRow("loc1", "u1", "locations/2"))
		mock.ExpectQuery(`SELECT\s+\(SELECT COUNT`).
			WillReturnRows(sqlmock.NewRows(statCols).AddRow(0, 0, 0, 0, 0, 0, 0, 0))

		stats, err := repo.GetLocationStats("u1", "loc1")
		require.NoError(t, err)
		assert.Zero(t, stats.ResponseRate)
	})

	t.Run("other tenant", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`SELECT \* FROM "gmb_locations"`).WillReturnRows(sqlmock.NewRows(locCols))

		_, err := repo.GetLocationStats("u2", "loc1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
