// Package gmb implements the Google Business Profile side of the dashboard:
// connecting accounts, syncing their data and pushing owner actions back to
// Google.
package gmb

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/oauth2"

	"gmbdash/server/internal/db"
	"gmbdash/server/internal/notify"
	"gmbdash/server/pkg/gbpapi"
)

var (
	// ErrAccountDisabled is returned for actions on a disconnected account.
	ErrAccountDisabled = errors.New("gbp account is disconnected")
	// ErrPostNotEditable is returned when a published post would be republished.
	ErrPostNotEditable = errors.New("post is already published")
)

// Store is the persistence the service needs; *db.Repository satisfies it.
type Store interface {
	UpsertAccount(acct *db.GMBAccount) error
	ListAccounts(userID string) ([]db.GMBAccount, error)
	GetAccount(userID, id string) (*db.GMBAccount, error)
	ListActiveAccounts() ([]db.GMBAccount, error)
	TouchAccountSync(userID, id string, at time.Time) error
	DeactivateAccount(userID, id string) error

	UpsertLocation(loc *db.GMBLocation) error
	GetLocation(userID, id string) (*db.GMBLocation, error)
	UpdateLocationStats(userID, id string, rating float64, reviewCount int, at time.Time) error

	ExistingReviewIDs(userID, locationID string) (map[string]bool, error)
	UpsertReviews(reviews []db.GMBReview) error
	GetReview(userID, id string) (*db.GMBReview, error)
	SetReviewReply(userID, id, text string, at time.Time) error
	ClearReviewReply(userID, id string, at time.Time) error
	ReviewsSince(userID, locationID string, since time.Time) ([]db.GMBReview, error)

	UpsertRemotePosts(posts []db.GMBPost) error
	CreatePost(post *db.GMBPost) error
	GetPost(userID, id string) (*db.GMBPost, error)
	MarkPostPublished(id, postName, searchURL string, at time.Time) error
	MarkPostFailed(id, message string, at time.Time) error
	DeletePost(userID, id string) error
	DuePosts(now time.Time, limit int) ([]db.GMBPost, error)

	UpsertQuestions(questions []db.GMBQuestion) error
	GetQuestion(userID, id string) (*db.GMBQuestion, error)
	SetAnswer(userID, id, text string, at time.Time) error

	UpsertMedia(items []db.GMBMedia) error
	CreateMedia(item *db.GMBMedia) error

	RecordActivity(userID, activityType, message string, metadata any) error
	GetProfile(userID string) (*db.ClientProfile, error)
}

// GBP is the Business Profile API surface; *gbpapi.Client satisfies it.
type GBP interface {
	GetUserInfo(ctx context.Context, token string) (*gbpapi.UserInfo, error)
	ListAccounts(ctx context.Context, token string) ([]gbpapi.Account, error)
	ListLocations(ctx context.Context, token, account string) ([]gbpapi.Location, error)
	ListReviews(ctx context.Context, token, account, location string) (*gbpapi.ReviewList, error)
	UpdateReply(ctx context.Context, token, review, comment string) (*gbpapi.ReviewReply, error)
	DeleteReply(ctx context.Context, token, review string) error
	ListLocalPosts(ctx context.Context, token, account, location string) ([]gbpapi.LocalPost, error)
	CreateLocalPost(ctx context.Context, token, account, location string, post gbpapi.LocalPost) (*gbpapi.LocalPost, error)
	DeleteLocalPost(ctx context.Context, token, post string) error
	ListMedia(ctx context.Context, token, account, location string) ([]gbpapi.MediaItem, error)
	CreateMedia(ctx context.Context, token, account, location string, item gbpapi.MediaItem) (*gbpapi.MediaItem, error)
	ListQuestions(ctx context.Context, token, location string) ([]gbpapi.Question, error)
	UpsertAnswer(ctx context.Context, token, question, text string) (*gbpapi.Answer, error)
	FetchDailyMetrics(ctx context.Context, token, location string, metrics []string, from, to time.Time) (map[string][]gbpapi.DatedValue, error)
}

// Tokens hands out provider tokens; *broker.TokenBroker satisfies it.
type Tokens interface {
	Token(ctx context.Context, userID, provider string) (*oauth2.Token, error)
	Save(userID, provider string, tok *oauth2.Token, accountRef string, metadata any) error
	Disconnect(userID, provider string) error
}

// Connector redeems OAuth callbacks; *google.Connector satisfies it.
type Connector interface {
	Finish(ctx context.Context, provider, state, code string) (*db.OAuthState, *oauth2.Token, error)
}

// MediaStore holds uploaded files; *storage.MediaStore satisfies it.
type MediaStore interface {
	Upload(ctx context.Context, objectPath, contentType string, body io.Reader) (string, error)
	Remove(ctx context.Context, objectPath string) error
}

// Invalidator drops cached tenant context after connection changes.
type Invalidator interface {
	Invalidate(userID string)
}

type Service struct {
	store     Store
	gbp       GBP
	tokens    Tokens
	connector Connector
	media     MediaStore
	mailer    notify.Mailer
	profiles  Invalidator

	dashboardURL string
	syncParallel int
	now          func() time.Time
}

type Deps struct {
	Store        Store
	GBP          GBP
	Tokens       Tokens
	Connector    Connector
	Media        MediaStore
	Mailer       notify.Mailer
	Profiles     Invalidator
	DashboardURL string
}

func NewService(d Deps) *Service {
	return &Service{
		store:        d.Store,
		gbp:          d.GBP,
		tokens:       d.Tokens,
		connector:    d.Connector,
		media:        d.Media,
		mailer:       d.Mailer,
		profiles:     d.Profiles,
		dashboardURL: d.DashboardURL,
		syncParallel: 4,
		now:          time.Now,
	}
}

// target bundles everything needed to address one location at Google.
type target struct {
	account  *db.GMBAccount
	location *db.GMBLocation
	token    string
}

func (s *Service) resolve(ctx context.Context, userID, locationID string) (*target, error) {
	loc, err := s.store.GetLocation(userID, locationID)
	if err != nil {
		return nil, err
	}
	acct, err := s.store.GetAccount(userID, loc.GMBAccountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive || !loc.IsActive {
		return nil, ErrAccountDisabled
	}
	tok, err := s.tokens.Token(ctx, userID, db.ProviderGoogle)
	if err != nil {
		return nil, err
	}
	return &target{account: acct, location: loc, token: tok.AccessToken}, nil
}

func (s *Service) activity(userID, activityType, message string, metadata any) {
	if err := s.store.RecordActivity(userID, activityType, message, metadata); err != nil {
		log.Printf("[gmb] activity %s not recorded: %v", activityType, err)
	}
}

func (s *Service) invalidate(userID string) {
	if s.profiles != nil {
		s.profiles.Invalidate(userID)
	}
}
