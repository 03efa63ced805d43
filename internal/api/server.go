// Package api is the dashboard's HTTP surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gmbdash/server/internal/analytics"
	"gmbdash/server/internal/broker"
	"gmbdash/server/internal/db"
	"gmbdash/server/internal/gmb"
	"gmbdash/server/internal/middleware"
	"gmbdash/server/internal/observability"
	"gmbdash/server/internal/youtube"
	"gmbdash/server/pkg/youtubeapi"
)

// Store is the read side the handlers query directly.
type Store interface {
	ListAccounts(userID string) ([]db.GMBAccount, error)
	ListLocations(userID, accountID string) ([]db.GMBLocation, error)
	GetLocation(userID, id string) (*db.GMBLocation, error)
	GetLocationStats(userID, locationID string) (*db.LocationStats, error)
	ListReviews(userID string, f db.ReviewFilter) ([]db.GMBReview, int64, error)
	ListPosts(userID, locationID string, page db.Page) ([]db.GMBPost, error)
	ListQuestions(userID, locationID, status string, page db.Page) ([]db.GMBQuestion, error)
	ListMedia(userID, locationID string, page db.Page) ([]db.GMBMedia, error)
	ListActivity(userID string, limit int) ([]db.ActivityLog, error)
	UpsertProfile(p *db.ClientProfile) error
}

type GMB interface {
	ConnectCallback(ctx context.Context, state, code string) (*gmb.ConnectResult, error)
	Disconnect(ctx context.Context, userID, accountID string) error
	SyncAccount(ctx context.Context, userID, accountID string) (*gmb.SyncResult, error)
	ReplyToReview(ctx context.Context, userID, reviewID, text string) (*db.GMBReview, error)
	DeleteReply(ctx context.Context, userID, reviewID string) (*db.GMBReview, error)
	CreatePost(ctx context.Context, userID string, in gmb.PostInput) (*db.GMBPost, error)
	DeletePost(ctx context.Context, userID, postID string) error
	AnswerQuestion(ctx context.Context, userID, questionID, text string) (*db.GMBQuestion, error)
	UploadMedia(ctx context.Context, userID string, in gmb.MediaUpload) (*db.GMBMedia, error)
	LocationMetrics(ctx context.Context, userID, locationID string, days int) (*gmb.LocationMetrics, error)
	ReviewAnalytics(userID, locationID string, g analytics.Granularity, days int) (*gmb.ReviewAnalytics, error)
}

type YouTube interface {
	ConnectCallback(ctx context.Context, state, code string) (*youtube.ConnectResult, error)
	Channel(ctx context.Context, userID string) (*youtubeapi.Channel, error)
	Videos(ctx context.Context, userID string, max int) ([]youtubeapi.Video, error)
	Comments(ctx context.Context, userID string, max int) ([]youtubeapi.Comment, error)
	Disconnect(ctx context.Context, userID string) error
}

type Recommender interface {
	GenerateForUser(ctx context.Context, userID string) ([]db.WeeklyTaskRecommendation, error)
	Tasks(userID string, week time.Time) ([]db.WeeklyTaskRecommendation, error)
	SetStatus(userID, taskID, status string) (*db.WeeklyTaskRecommendation, error)
}

// OAuthStarter issues consent URLs; *google.Connector satisfies it.
type OAuthStarter interface {
	Start(userID, provider, redirectTo string) (string, error)
}

// Profiles serves cached tenant context; *broker.ProfileBroker satisfies it.
type Profiles interface {
	Context(userID string) (*broker.TenantContext, error)
	Invalidate(userID string)
}

type Deps struct {
	Store       Store
	GMB         GMB
	YouTube     YouTube
	Recommender Recommender
	OAuth       OAuthStarter
	Profiles    Profiles

	// Authorize rejects requests without a valid session.
	Authorize func(http.Handler) http.Handler
	Limiter   middleware.Limiter
	Health    func(ctx context.Context) error

	DashboardURL   string
	AllowedOrigins []string
}

type Handler struct {
	Deps
	now func() time.Time
}

func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d, now: time.Now}
}

// Routes builds the router. OAuth callbacks are public because Google
// redirects the browser there without the API session header.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, recoverPanic, middleware.RequestLog, middleware.CORS(h.AllowedOrigins))

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())
	r.Get("/api/gmb/oauth/callback", h.gmbCallback)
	r.Get("/api/youtube/oauth/callback", h.youtubeCallback)

	r.Group(func(r chi.Router) {
		r.Use(h.Authorize)
		if h.Limiter != nil {
			r.Use(middleware.RateLimit(h.Limiter))
		}

		r.Post("/api/gmb/create-auth-url", h.createAuthURL(db.ProviderGoogle))
		r.Get("/api/gmb/accounts", h.listAccounts)
		r.Delete("/api/gmb/accounts/{id}", h.disconnectAccount)
		r.Post("/api/gmb/accounts/{id}/sync", h.syncAccount)

		r.Get("/api/gmb/locations", h.listLocations)
		r.Get("/api/gmb/locations/{id}", h.getLocation)
		r.Get("/api/gmb/locations/{id}/stats", h.locationStats)
		r.Get("/api/gmb/locations/{id}/metrics", h.locationMetrics)

		r.Get("/api/gmb/reviews", h.listReviews)
		r.Post("/api/gmb/reviews/{id}/reply", h.replyToReview)
		r.Delete("/api/gmb/reviews/{id}/reply", h.deleteReply)

		r.Get("/api/gmb/posts", h.listPosts)
		r.Post("/api/gmb/posts", h.createPost)
		r.Delete("/api/gmb/posts/{id}", h.deletePost)

		r.Get("/api/gmb/questions", h.listQuestions)
		r.Post("/api/gmb/questions/{id}/answer", h.answerQuestion)

		r.Get("/api/gmb/media", h.listMedia)
		r.Post("/api/gmb/media", h.uploadMedia)

		r.Get("/api/analytics/reviews", h.reviewAnalytics)
		r.Get("/api/activity", h.listActivity)

		r.Get("/api/profile", h.getProfile)
		r.Put("/api/profile", h.updateProfile)

		r.Get("/api/recommendations", h.listRecommendations)
		r.Post("/api/recommendations/generate", h.generateRecommendations)
		r.Patch("/api/recommendations/{id}", h.updateRecommendation)

		r.Post("/api/youtube/create-auth-url", h.createAuthURL(db.ProviderYouTube))
		r.Get("/api/youtube/channel", h.youtubeChannel)
		r.Get("/api/youtube/videos", h.youtubeVideos)
		r.Get("/api/youtube/comments", h.youtubeComments)
		r.Delete("/api/youtube/connection", h.youtubeDisconnect)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "db": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "db": "ok"})
}
