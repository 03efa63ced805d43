// Package youtube connects a user's YouTube channel and reads its videos and
// comments for the dashboard.
package youtube

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"gmbdash/server/internal/db"
	"gmbdash/server/internal/observability"
	"gmbdash/server/pkg/youtubeapi"
)

const (
	defaultVideos   = 25
	defaultComments = 50
)

// API is the YouTube Data surface; *youtubeapi.Client satisfies it.
type API interface {
	Channel(ctx context.Context, token string) (*youtubeapi.Channel, error)
	Videos(ctx context.Context, token, playlist string, max int) ([]youtubeapi.Video, error)
	Comments(ctx context.Context, token, channel string, max int) ([]youtubeapi.Comment, error)
}

type Tokens interface {
	Token(ctx context.Context, userID, provider string) (*oauth2.Token, error)
	Save(userID, provider string, tok *oauth2.Token, accountRef string, metadata any) error
	Disconnect(userID, provider string) error
}

type Connector interface {
	Finish(ctx context.Context, provider, state, code string) (*db.OAuthState, *oauth2.Token, error)
}

type Activity interface {
	RecordActivity(userID, activityType, message string, metadata any) error
}

type Invalidator interface {
	Invalidate(userID string)
}

type Service struct {
	api       API
	tokens    Tokens
	connector Connector
	activity  Activity
	profiles  Invalidator
}

func NewService(api API, tokens Tokens, connector Connector, activity Activity, profiles Invalidator) *Service {
	return &Service{api: api, tokens: tokens, connector: connector, activity: activity, profiles: profiles}
}

type ConnectResult struct {
	UserID     string
	Channel    *youtubeapi.Channel
	RedirectTo string
}

// ConnectCallback finishes the YouTube consent flow and stores the token
// with the channel it grants access to.
func (s *Service) ConnectCallback(ctx context.Context, state, code string) (*ConnectResult, error) {
	st, tok, err := s.connector.Finish(ctx, db.ProviderYouTube, state, code)
	if err != nil {
		if st != nil {
			observability.LogOAuthEvent(st.UserID, db.ProviderYouTube, "exchange_failed", err)
		}
		return nil, err
	}

	ch, err := s.api.Channel(ctx, tok.AccessToken)
	if err != nil {
		observability.LogOAuthEvent(st.UserID, db.ProviderYouTube, "channel_lookup_failed", err)
		return nil, errors.Wrap(err, "look up channel")
	}
	meta := map[string]string{"channel_id": ch.ID, "channel_title": ch.Title}
	if err := s.tokens.Save(st.UserID, db.ProviderYouTube, tok, ch.ID, meta); err != nil {
		return nil, errors.Wrap(err, "save token")
	}

	s.invalidate(st.UserID)
	s.record(st.UserID, "youtube_connected", "Connected YouTube channel "+ch.Title, meta)
	observability.LogOAuthEvent(st.UserID, db.ProviderYouTube, "connected", nil)
	return &ConnectResult{UserID: st.UserID, Channel: ch, RedirectTo: st.RedirectTo}, nil
}

func (s *Service) token(ctx context.Context, userID string) (string, error) {
	tok, err := s.tokens.Token(ctx, userID, db.ProviderYouTube)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Channel returns the connected channel with its current statistics.
func (s *Service) Channel(ctx context.Context, userID string) (*youtubeapi.Channel, error) {
	token, err := s.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.api.Channel(ctx, token)
}

// Videos lists the newest uploads. max <= 0 uses a default page.
func (s *Service) Videos(ctx context.Context, userID string, max int) ([]youtubeapi.Video, error) {
	ctx, span := otel.Tracer("gmbdash/youtube").Start(ctx, "youtube.Videos")
	defer span.End()

	token, err := s.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	ch, err := s.api.Channel(ctx, token)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("channel.id", ch.ID))
	if max <= 0 {
		max = defaultVideos
	}
	videos, err := s.api.Videos(ctx, token, ch.UploadsPlaylistID, max)
	if err != nil {
		return nil, errors.Wrap(err, "list videos")
	}
	if videos == nil {
		videos = []youtubeapi.Video{}
	}
	return videos, nil
}

// Comments lists recent top-level comments across the channel.
func (s *Service) Comments(ctx context.Context, userID string, max int) ([]youtubeapi.Comment, error) {
	token, err := s.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	ch, err := s.api.Channel(ctx, token)
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		max = defaultComments
	}
	comments, err := s.api.Comments(ctx, token, ch.ID, max)
	if err != nil {
		return nil, errors.Wrap(err, "list comments")
	}
	if comments == nil {
		comments = []youtubeapi.Comment{}
	}
	return comments, nil
}

// Disconnect forgets the YouTube token.
func (s *Service) Disconnect(_ context.Context, userID string) error {
	if err := s.tokens.Disconnect(userID, db.ProviderYouTube); err != nil {
		return err
	}
	s.invalidate(userID)
	s.record(userID, "youtube_disconnected", "Disconnected YouTube", nil)
	observability.LogOAuthEvent(userID, db.ProviderYouTube, "disconnected", nil)
	return nil
}

func (s *Service) record(userID, activityType, message string, metadata any) {
	if s.activity == nil {
		return
	}
	if err := s.activity.RecordActivity(userID, activityType, message, metadata); err != nil {
		observability.LogError("youtube.activity", err)
	}
}

func (s *Service) invalidate(userID string) {
	if s.profiles != nil {
		s.profiles.Invalidate(userID)
	}
}
