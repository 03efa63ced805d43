package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmbdash/server/internal/analytics"
	"gmbdash/server/internal/broker"
	"gmbdash/server/internal/db"
	"gmbdash/server/internal/gmb"
	"gmbdash/server/internal/google"
	"gmbdash/server/internal/middleware"
	"gmbdash/server/internal/youtube"
	"gmbdash/server/pkg/googleapi"
	"gmbdash/server/pkg/youtubeapi"
)

const testUser = "11111111-1111-1111-1111-111111111111"

type fakeStore struct {
	reviewFilter db.ReviewFilter
	activity     int
	profile      *db.ClientProfile
	lookups      int
}

func (f *fakeStore) ListAccounts(string) ([]db.GMBAccount, error) {
	return []db.GMBAccount{{ID: "a1", AccountName: "accounts/9"}}, nil
}
func (f *fakeStore) ListLocations(string, string) ([]db.GMBLocation, error) { return nil, nil }
func (f *fakeStore) GetLocation(_, id string) (*db.GMBLocation, error) {
	f.lookups++
	if id != "loc1" {
		return nil, db.ErrNotFound
	}
	return &db.GMBLocation{ID: "loc1", Title: "Cafe"}, nil
}
func (f *fakeStore) GetLocationStats(_, id string) (*db.LocationStats, error) {
	if id != "loc1" {
		return nil, db.ErrNotFound
	}
	return &db.LocationStats{TotalReviews: 4, PendingReviews: 1}, nil
}
func (f *fakeStore) ListReviews(_ string, rf db.ReviewFilter) ([]db.GMBReview, int64, error) {
	f.reviewFilter = rf
	return []db.GMBReview{{ID: "r1", Rating: 5}}, 7, nil
}
func (f *fakeStore) ListPosts(string, string, db.Page) ([]db.GMBPost, error) { return nil, nil }
func (f *fakeStore) ListQuestions(string, string, string, db.Page) ([]db.GMBQuestion, error) {
	return nil, nil
}
func (f *fakeStore) ListMedia(string, string, db.Page) ([]db.GMBMedia, error) { return nil, nil }
func (f *fakeStore) ListActivity(_ string, limit int) ([]db.ActivityLog, error) {
	f.activity = limit
	return []db.ActivityLog{}, nil
}
func (f *fakeStore) UpsertProfile(p *db.ClientProfile) error {
	f.profile = p
	return nil
}

type fakeGMB struct {
	connectErr error
	replyErr   error
	upload     *gmb.MediaUpload
	days       int
	granular   analytics.Granularity
}

func (f *fakeGMB) ConnectCallback(_ context.Context, state, _ string) (*gmb.ConnectResult, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &gmb.ConnectResult{UserID: testUser, RedirectTo: "/locations"}, nil
}
func (f *fakeGMB) Disconnect(context.Context, string, string) error { return nil }
func (f *fakeGMB) SyncAccount(_ context.Context, _, id string) (*gmb.SyncResult, error) {
	return &gmb.SyncResult{AccountID: id, Locations: 2}, nil
}
func (f *fakeGMB) ReplyToReview(_ context.Context, _, id, text string) (*db.GMBReview, error) {
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	return &db.GMBReview{ID: id, ReplyText: &text}, nil
}
func (f *fakeGMB) DeleteReply(_ context.Context, _, id string) (*db.GMBReview, error) {
	return &db.GMBReview{ID: id}, nil
}
func (f *fakeGMB) CreatePost(_ context.Context, _ string, in gmb.PostInput) (*db.GMBPost, error) {
	return &db.GMBPost{ID: "p1", Summary: in.Summary}, nil
}
func (f *fakeGMB) DeletePost(context.Context, string, string) error {
	return errors.Wrap(gmb.ErrPostNotEditable, "delete")
}
func (f *fakeGMB) AnswerQuestion(_ context.Context, _, id, text string) (*db.GMBQuestion, error) {
	return &db.GMBQuestion{ID: id}, nil
}
func (f *fakeGMB) UploadMedia(_ context.Context, _ string, in gmb.MediaUpload) (*db.GMBMedia, error) {
	f.upload = &in
	return &db.GMBMedia{ID: "m1"}, nil
}
func (f *fakeGMB) LocationMetrics(_ context.Context, _, id string, days int) (*gmb.LocationMetrics, error) {
	f.days = days
	return &gmb.LocationMetrics{LocationID: id, Days: days}, nil
}
func (f *fakeGMB) ReviewAnalytics(_, _ string, g analytics.Granularity, days int) (*gmb.ReviewAnalytics, error) {
	f.granular, f.days = g, days
	return &gmb.ReviewAnalytics{Granularity: g}, nil
}

type fakeYouTube struct {
	max int
}

func (f *fakeYouTube) ConnectCallback(context.Context, string, string) (*youtube.ConnectResult, error) {
	return &youtube.ConnectResult{UserID: testUser, RedirectTo: "/youtube"}, nil
}
func (f *fakeYouTube) Channel(context.Context, string) (*youtubeapi.Channel, error) {
	return nil, youtubeapi.ErrNoChannel
}
func (f *fakeYouTube) Videos(_ context.Context, _ string, max int) ([]youtubeapi.Video, error) {
	f.max = max
	return []youtubeapi.Video{}, nil
}
func (f *fakeYouTube) Comments(context.Context, string, int) ([]youtubeapi.Comment, error) {
	return nil, broker.ErrReauthRequired
}
func (f *fakeYouTube) Disconnect(context.Context, string) error { return nil }

type fakeRecommender struct {
	week time.Time
}

func (f *fakeRecommender) GenerateForUser(context.Context, string) ([]db.WeeklyTaskRecommendation, error) {
	return []db.WeeklyTaskRecommendation{{ID: "t1"}}, nil
}
func (f *fakeRecommender) Tasks(_ string, week time.Time) ([]db.WeeklyTaskRecommendation, error) {
	f.week = week
	return []db.WeeklyTaskRecommendation{}, nil
}
func (f *fakeRecommender) SetStatus(_, id, status string) (*db.WeeklyTaskRecommendation, error) {
	if status != db.TaskCompleted {
		return nil, validation.Errors{"status": validation.NewError("validation_in_invalid", "must be a valid value")}
	}
	return &db.WeeklyTaskRecommendation{ID: id, Status: status}, nil
}

type fakeOAuth struct {
	provider, redirect string
}

func (f *fakeOAuth) Start(_, provider, redirectTo string) (string, error) {
	f.provider, f.redirect = provider, redirectTo
	return "https://accounts.google.com/o/oauth2/auth?state=s", nil
}

type fakeProfiles struct {
	invalidated bool
}

func (f *fakeProfiles) Context(userID string) (*broker.TenantContext, error) {
	return &broker.TenantContext{Profile: db.DefaultProfile(userID), Providers: []string{db.ProviderGoogle}}, nil
}
func (f *fakeProfiles) Invalidate(string) { f.invalidated = true }

type fixture struct {
	store    *fakeStore
	gmb      *fakeGMB
	yt       *fakeYouTube
	rec      *fakeRecommender
	oauth    *fakeOAuth
	profiles *fakeProfiles
	handler  http.Handler
}

// testAuthorize accepts any request carrying a bearer token.
func testAuthorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ctx := middleware.WithAuthContext(r.Context(), &middleware.AuthContext{UserID: testUser})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newFixture(t *testing.T, health error) *fixture {
	t.Helper()
	f := &fixture{
		store:    &fakeStore{},
		gmb:      &fakeGMB{},
		yt:       &fakeYouTube{},
		rec:      &fakeRecommender{},
		oauth:    &fakeOAuth{},
		profiles: &fakeProfiles{},
	}
	limiter := middleware.NewRateLimiter(1000, time.Minute)
	t.Cleanup(limiter.Stop)
	f.handler = NewHandler(Deps{
		Store:        f.store,
		GMB:          f.gmb,
		YouTube:      f.yt,
		Recommender:  f.rec,
		OAuth:        f.oauth,
		Profiles:     f.profiles,
		Authorize:    testAuthorize,
		Limiter:      limiter,
		Health:       func(context.Context) error { return health },
		DashboardURL: "https://app.example.com",
	}).Routes()
	return f
}

func (f *fixture) do(method, target string, body any) *httptest.ResponseRecorder {
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Authorization", "Bearer session")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = newFixture(t, errors.New("down")).do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthenticatedRoutesRequireSession(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/gmb/accounts", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAuthURL(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodPost, "/api/gmb/create-auth-url", map[string]string{"redirect_to": "/locations"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["url"], "state=s")
	assert.Equal(t, db.ProviderGoogle, f.oauth.provider)
	assert.Equal(t, "/locations", f.oauth.redirect)

	rec = f.do(http.MethodPost, "/api/youtube/create-auth-url", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, db.ProviderYouTube, f.oauth.provider)
}

func TestOAuthCallbackRedirects(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		connectErr error
		want       string
	}{
		{"gmb success", "/api/gmb/oauth/callback?state=s&code=c", nil, "https://app.example.com/locations?connected=gmb"},
		{"youtube success", "/api/youtube/oauth/callback?state=s&code=c", nil, "https://app.example.com/youtube?connected=youtube"},
		{"consent denied", "/api/gmb/oauth/callback?error=access_denied", nil, "https://app.example.com/?error=access_denied"},
		{"invalid state", "/api/gmb/oauth/callback?state=s&code=c", errors.Wrap(google.ErrInvalidState, "consume"), "https://app.example.com/?error=INVALID_STATE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.gmb.connectErr = tt.connectErr
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Location"))
		})
	}
}

func TestListReviewsFilters(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/gmb/reviews?location_id=loc1&status=pending&rating=2&limit=10&offset=20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 7, body["total"])
	assert.Len(t, body["reviews"], 1)
	assert.Equal(t, db.ReviewFilter{LocationID: "loc1", Status: "pending", Rating: 2, Page: db.Page{Limit: 10, Offset: 20}}, f.store.reviewFilter)

	for _, q := range []string{"status=archived", "rating=9", "rating=x", "limit=-1"} {
		rec := f.do(http.MethodGet, "/api/gmb/reviews?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{db.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{errors.Wrap(gmb.ErrAccountDisabled, "resolve"), http.StatusForbidden, "ACCOUNT_DISABLED"},
		{broker.ErrNotConnected, http.StatusBadRequest, "NOT_CONNECTED"},
		{googleapi.ErrUnauthorized, http.StatusConflict, "REAUTH_REQUIRED"},
		{&googleapi.APIError{Status: 500, Message: "backend"}, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{validation.Errors{"text": validation.ErrRequired}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			f := newFixture(t, nil)
			f.gmb.replyErr = tt.err
			rec := f.do(http.MethodPost, "/api/gmb/reviews/r1/reply", map[string]string{"text": "thanks"})
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode(t, rec)["error"])
		})
	}
}

func TestReplyRejectsBadJSON(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodPost, "/api/gmb/reviews/r1/reply", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", decode(t, rec)["error"])
}

func TestDeletePublishedPostConflicts(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodDelete, "/api/gmb/posts/p1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "POST_PUBLISHED", decode(t, rec)["error"])
}

func TestLocationEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/gmb/locations/loc1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, decode(t, rec)["total_reviews"])

	rec = f.do(http.MethodGet, "/api/gmb/locations/missing/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, f.store.lookups, "stats does its own ownership check")

	rec = f.do(http.MethodGet, "/api/gmb/locations/loc1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultDays, f.gmb.days)

	rec = f.do(http.MethodGet, "/api/gmb/locations/loc1/metrics?days=400", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncAccount(t *testing.T) {
	rec := newFixture(t, nil).do(http.MethodPost, "/api/gmb/accounts/a1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "a1", body["account_id"])
	assert.EqualValues(t, 2, body["locations"])
}

func TestReviewAnalyticsParams(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/analytics/reviews?granularity=week&days=90", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, analytics.Week, f.gmb.granular)
	assert.Equal(t, 90, f.gmb.days)

	rec = f.do(http.MethodGet, "/api/analytics/reviews?granularity=hour", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivityLimit(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/activity", nil).Code)
	assert.Equal(t, defaultActivity, f.store.activity)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/activity?limit=101", nil).Code)
}

func TestUploadMedia(t *testing.T) {
	f := newFixture(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("location_id", "loc1"))
	require.NoError(t, mw.WriteField("category", "INTERIOR"))
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="room.jpg"`)
	hdr.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("jpegbytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/gmb/media", &buf)
	req.Header.Set("Authorization", "Bearer session")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, f.gmb.upload)
	assert.Equal(t, "loc1", f.gmb.upload.LocationID)
	assert.Equal(t, "room.jpg", f.gmb.upload.Filename)
	assert.Equal(t, "image/jpeg", f.gmb.upload.ContentType)
	assert.Equal(t, "INTERIOR", f.gmb.upload.Category)
	assert.Equal(t, int64(9), f.gmb.upload.Size)
}

func TestUploadMediaRequiresFile(t *testing.T) {
	f := newFixture(t, nil)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("location_id", "loc1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/gmb/media", &buf)
	req.Header.Set("Authorization", "Bearer session")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodPut, "/api/profile", map[string]any{
		"business_name": "Cafe Co",
		"timezone":      "Europe/Berlin",
		"weekly_digest": false,
		"preferences":   map[string]any{"theme": "dark"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, f.store.profile)
	assert.Equal(t, "Cafe Co", f.store.profile.BusinessName)
	assert.Equal(t, "Europe/Berlin", f.store.profile.Timezone)
	assert.False(t, f.store.profile.WeeklyDigest)
	assert.True(t, f.store.profile.NotifyNegativeReviews)
	assert.JSONEq(t, `{"theme":"dark"}`, string(f.store.profile.Preferences))
	assert.True(t, f.profiles.invalidated)
}

func TestUpdateProfileValidation(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodPut, "/api/profile", map[string]any{
		"contact_email": "not-an-email",
		"timezone":      "Mars/Olympus",
		"preferences":   []int{1},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	details, ok := decode(t, rec)["details"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "contact_email")
	assert.Contains(t, details, "timezone")
	assert.Contains(t, details, "preferences")
	assert.Nil(t, f.store.profile)
}

func TestRecommendations(t *testing.T) {
	f := newFixture(t, nil)

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/recommendations", nil).Code)
	assert.True(t, f.rec.week.IsZero())

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/recommendations?week=2026-03-02", nil).Code)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), f.rec.week)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/recommendations?week=March", nil).Code)

	rec := f.do(http.MethodPost, "/api/recommendations/generate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["tasks"], 1)

	rec = f.do(http.MethodPatch, "/api/recommendations/t1", map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode(t, rec)["status"])

	rec = f.do(http.MethodPatch, "/api/recommendations/t1", map[string]string{"status": "later"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestYouTubeEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/youtube/channel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NO_CHANNEL", decode(t, rec)["error"])

	rec = f.do(http.MethodGet, "/api/youtube/videos?max=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, f.yt.max)
	assert.NotNil(t, decode(t, rec)["videos"])

	rec = f.do(http.MethodGet, "/api/youtube/comments", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/youtube/connection", nil).Code)
}

func TestRedirectMergesQuery(t *testing.T) {
	h := NewHandler(Deps{DashboardURL: "https://app.example.com"})
	rec := httptest.NewRecorder()
	h.redirect(rec, httptest.NewRequest(http.MethodGet, "/", nil), "/settings?tab=google", url.Values{"connected": {"gmb"}})
	assert.Equal(t, "https://app.example.com/settings?connected=gmb&tab=google", rec.Header().Get("Location"))
}

func TestRecoverPanicUsesErrorEnvelope(t *testing.T) {
	h := middleware.RequestID(recoverPanic(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	want, err := json.Marshal(toError(errors.New("unclassified")))
	require.NoError(t, err)
	assert.JSONEq(t, string(want), rec.Body.String())
}
