package gmb

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"gmbdash/server/internal/db"
	"gmbdash/server/internal/notify"
	"gmbdash/server/pkg/gbpapi"
	"gmbdash/server/pkg/googleapi"
)

type fakeStore struct {
	mu        sync.Mutex
	accounts  map[string]*db.GMBAccount
	locations map[string]*db.GMBLocation
	reviews   map[string]*db.GMBReview
	posts     map[string]*db.GMBPost
	questions map[string]*db.GMBQuestion
	media     map[string]*db.GMBMedia
	profiles  map[string]*db.ClientProfile
	activity  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:  map[string]*db.GMBAccount{},
		locations: map[string]*db.GMBLocation{},
		reviews:   map[string]*db.GMBReview{},
		posts:     map[string]*db.GMBPost{},
		questions: map[string]*db.GMBQuestion{},
		media:     map[string]*db.GMBMedia{},
		profiles:  map[string]*db.ClientProfile{},
	}
}

func (f *fakeStore) nextID() string { return uuid.NewString() }

func (f *fakeStore) UpsertAccount(a *db.GMBAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.accounts {
		if existing.UserID == a.UserID && existing.AccountName == a.AccountName {
			existing.DisplayName, existing.Email, existing.IsActive = a.DisplayName, a.Email, true
			a.ID = existing.ID
			return nil
		}
	}
	if a.ID == "" {
		a.ID = f.nextID()
	}
	a.IsActive = true
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeStore) ListAccounts(userID string) ([]db.GMBAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.GMBAccount
	for _, a := range f.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAccount(userID, id string) (*db.GMBAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok || a.UserID != userID {
		return nil, db.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ListActiveAccounts() ([]db.GMBAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.GMBAccount
	for _, a := range f.accounts {
		if a.IsActive {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeStore) TouchAccountSync(userID, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok && a.UserID == userID {
		a.LastSyncAt = &at
	}
	return nil
}

func (f *fakeStore) DeactivateAccount(userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok || a.UserID != userID {
		return db.ErrNotFound
	}
	a.IsActive = false
	for _, l := range f.locations {
		if l.GMBAccountID == id {
			l.IsActive = false
		}
	}
	return nil
}

func (f *fakeStore) UpsertLocation(loc *db.GMBLocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.locations {
		if existing.UserID == loc.UserID && existing.LocationName == loc.LocationName {
			loc.ID = existing.ID
			break
		}
	}
	if loc.ID == "" {
		loc.ID = f.nextID()
	}
	loc.IsActive = true
	cp := *loc
	f.locations[loc.ID] = &cp
	return nil
}

func (f *fakeStore) GetLocation(userID, id string) (*db.GMBLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locations[id]
	if !ok || l.UserID != userID {
		return nil, db.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) UpdateLocationStats(userID, id string, rating float64, count int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.locations[id]; ok && l.UserID == userID {
		l.Rating, l.ReviewCount, l.LastSyncedAt = rating, count, &at
	}
	return nil
}

func (f *fakeStore) ExistingReviewIDs(userID, locationID string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for _, r := range f.reviews {
		if r.UserID == userID && r.LocationID == locationID {
			out[r.ReviewID] = true
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertReviews(reviews []db.GMBReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range reviews {
		r := r
		key := r.UserID + "/" + r.ReviewID
		if existing, ok := f.reviews[key]; ok {
			r.ID = existing.ID
		} else {
			r.ID = key
		}
		r.Status = db.ReviewPending
		if r.ReplyText != nil {
			r.Status = db.ReviewReplied
		}
		f.reviews[key] = &r
	}
	return nil
}

func (f *fakeStore) findReview(userID, id string) *db.GMBReview {
	for _, r := range f.reviews {
		if r.ID == id && r.UserID == userID {
			return r
		}
	}
	return nil
}

func (f *fakeStore) GetReview(userID, id string) (*db.GMBReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.findReview(userID, id)
	if r == nil {
		return nil, db.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) SetReviewReply(userID, id, text string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.findReview(userID, id)
	if r == nil {
		return db.ErrNotFound
	}
	r.ReplyText, r.ReplyTime, r.Status = &text, &at, db.ReviewReplied
	return nil
}

func (f *fakeStore) ClearReviewReply(userID, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.findReview(userID, id)
	if r == nil {
		return db.ErrNotFound
	}
	r.ReplyText, r.ReplyTime, r.Status = nil, nil, db.ReviewPending
	return nil
}

func (f *fakeStore) ReviewsSince(userID, locationID string, since time.Time) ([]db.GMBReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.GMBReview
	for _, r := range f.reviews {
		if r.UserID == userID && (locationID == "" || r.LocationID == locationID) && !r.ReviewTime.Before(since) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertRemotePosts(posts []db.GMBPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range posts {
		p := p
		p.ID = *p.PostName
		f.posts[p.ID] = &p
	}
	return nil
}

func (f *fakeStore) CreatePost(p *db.GMBPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.posts[p.ID] = &cp
	return nil
}

func (f *fakeStore) GetPost(userID, id string) (*db.GMBPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok || p.UserID != userID {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) MarkPostPublished(id, name, searchURL string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.posts[id]
	p.PostName, p.SearchURL, p.Status, p.PublishedAt = &name, searchURL, db.PostPublished, &at
	return nil
}

func (f *fakeStore) MarkPostFailed(id, msg string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.posts[id]
	p.Status, p.ErrorMessage = db.PostFailed, msg
	return nil
}

func (f *fakeStore) DeletePost(userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok || p.UserID != userID {
		return db.ErrNotFound
	}
	delete(f.posts, id)
	return nil
}

func (f *fakeStore) DuePosts(now time.Time, limit int) ([]db.GMBPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.GMBPost
	for _, p := range f.posts {
		if p.Status == db.PostScheduled && p.ScheduledAt != nil && !p.ScheduledAt.After(now) && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertQuestions(qs []db.GMBQuestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range qs {
		q := q
		q.ID = q.QuestionName
		q.AnswerStatus = db.AnswerPending
		if q.AnswerText != nil {
			q.AnswerStatus = db.AnswerAnswered
		}
		f.questions[q.ID] = &q
	}
	return nil
}

func (f *fakeStore) GetQuestion(userID, id string) (*db.GMBQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[id]
	if !ok || q.UserID != userID {
		return nil, db.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (f *fakeStore) SetAnswer(userID, id, text string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[id]
	if !ok || q.UserID != userID {
		return db.ErrNotFound
	}
	q.AnswerText, q.AnsweredAt, q.AnswerStatus = &text, &at, db.AnswerAnswered
	return nil
}

func (f *fakeStore) UpsertMedia(items []db.GMBMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range items {
		m := m
		f.media[m.MediaName] = &m
	}
	return nil
}

func (f *fakeStore) CreateMedia(m *db.GMBMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = f.nextID()
	cp := *m
	f.media[m.MediaName] = &cp
	return nil
}

func (f *fakeStore) RecordActivity(_, activityType, _ string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, activityType)
	return nil
}

func (f *fakeStore) GetProfile(userID string) (*db.ClientProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// fakeGBP serves canned data per location name.
type fakeGBP struct {
	mu         sync.Mutex
	email      string
	accounts   []gbpapi.Account
	locations  []gbpapi.Location
	reviews    map[string][]gbpapi.Review
	failPosts  map[string]error
	replies    map[string]string
	deleted    []string
	created    []gbpapi.LocalPost
	createErr  error
	deleteErr  error
	mediaErr   error
	metricsErr error
	answers    map[string]string
	tokensSeen []string
}

func newFakeGBP() *fakeGBP {
	return &fakeGBP{
		email:     "owner@example.com",
		reviews:   map[string][]gbpapi.Review{},
		failPosts: map[string]error{},
		replies:   map[string]string{},
		answers:   map[string]string{},
	}
}

func (g *fakeGBP) GetUserInfo(_ context.Context, token string) (*gbpapi.UserInfo, error) {
	return &gbpapi.UserInfo{Email: g.email}, nil
}

func (g *fakeGBP) ListAccounts(context.Context, string) ([]gbpapi.Account, error) {
	return g.accounts, nil
}

func (g *fakeGBP) ListLocations(_ context.Context, token, _ string) ([]gbpapi.Location, error) {
	g.mu.Lock()
	g.tokensSeen = append(g.tokensSeen, token)
	g.mu.Unlock()
	return g.locations, nil
}

func (g *fakeGBP) ListReviews(_ context.Context, _, _, location string) (*gbpapi.ReviewList, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &gbpapi.ReviewList{Reviews: g.reviews[location]}, nil
}

func (g *fakeGBP) UpdateReply(_ context.Context, _, review, comment string) (*gbpapi.ReviewReply, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies[review] = comment
	return &gbpapi.ReviewReply{Comment: comment}, nil
}

func (g *fakeGBP) DeleteReply(_ context.Context, _, review string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.replies, review)
	return nil
}

func (g *fakeGBP) ListLocalPosts(_ context.Context, _, _, location string) ([]gbpapi.LocalPost, error) {
	if err := g.failPosts[location]; err != nil {
		return nil, err
	}
	return []gbpapi.LocalPost{{Name: location + "/localPosts/1", Summary: "hello", TopicType: "STANDARD"}}, nil
}

func (g *fakeGBP) CreateLocalPost(_ context.Context, _, _, location string, post gbpapi.LocalPost) (*gbpapi.LocalPost, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, post)
	post.Name = location + "/localPosts/new"
	post.SearchURL = "https://search/new"
	return &post, nil
}

func (g *fakeGBP) DeleteLocalPost(_ context.Context, _, post string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, post)
	return g.deleteErr
}

func (g *fakeGBP) ListMedia(context.Context, string, string, string) ([]gbpapi.MediaItem, error) {
	return nil, nil
}

func (g *fakeGBP) CreateMedia(_ context.Context, _, _, location string, item gbpapi.MediaItem) (*gbpapi.MediaItem, error) {
	if g.mediaErr != nil {
		return nil, g.mediaErr
	}
	item.Name = location + "/media/m1"
	item.GoogleURL = "https://lh3.google/m1"
	return &item, nil
}

func (g *fakeGBP) ListQuestions(context.Context, string, string) ([]gbpapi.Question, error) {
	return nil, nil
}

func (g *fakeGBP) UpsertAnswer(_ context.Context, _, question, text string) (*gbpapi.Answer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answers[question] = text
	return &gbpapi.Answer{Text: text}, nil
}

func (g *fakeGBP) FetchDailyMetrics(_ context.Context, _, _ string, metrics []string, from, _ time.Time) (map[string][]gbpapi.DatedValue, error) {
	if g.metricsErr != nil {
		return nil, g.metricsErr
	}
	out := map[string][]gbpapi.DatedValue{}
	for _, m := range metrics {
		out[m] = []gbpapi.DatedValue{{Date: from, Value: 2}, {Date: from.AddDate(0, 0, 1), Value: 3}}
	}
	return out, nil
}

type fakeTokens struct {
	saved        map[string]*oauth2.Token
	disconnected []string
	err          error
}

func (t *fakeTokens) Token(_ context.Context, userID, provider string) (*oauth2.Token, error) {
	if t.err != nil {
		return nil, t.err
	}
	return &oauth2.Token{AccessToken: "access-" + userID}, nil
}

func (t *fakeTokens) Save(userID, provider string, tok *oauth2.Token, _ string, _ any) error {
	t.saved[userID+"/"+provider] = tok
	return nil
}

func (t *fakeTokens) Disconnect(userID, provider string) error {
	t.disconnected = append(t.disconnected, userID+"/"+provider)
	return nil
}

type fakeConnector struct {
	state *db.OAuthState
	err   error
}

func (c fakeConnector) Finish(context.Context, string, string, string) (*db.OAuthState, *oauth2.Token, error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	return c.state, &oauth2.Token{AccessToken: "fresh", RefreshToken: "r"}, nil
}

type fakeMedia struct {
	uploaded map[string]string
	removed  []string
}

func (m *fakeMedia) Upload(_ context.Context, p, _ string, body io.Reader) (string, error) {
	b, _ := io.ReadAll(body)
	m.uploaded[p] = string(b)
	return "https://cdn.example.com/" + p, nil
}

func (m *fakeMedia) Remove(_ context.Context, p string) error {
	m.removed = append(m.removed, p)
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *fakeMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type fakeInvalidator struct{ users []string }

func (f *fakeInvalidator) Invalidate(userID string) { f.users = append(f.users, userID) }

var errUpstream = &googleapi.APIError{Status: 503, Message: "backend error"}
