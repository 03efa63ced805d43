// Package google holds the OAuth2 client configuration for the Google
// providers the dashboard connects to.
package google

import (
	"context"

	"github.com/go-faster/errors"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"gmbdash/server/internal/config"
	"gmbdash/server/internal/db"
)

// ErrUnknownProvider is returned for providers other than google/youtube.
var ErrUnknownProvider = errors.New("unknown oauth provider")

const (
	ScopeBusinessManage  = "https://www.googleapis.com/auth/business.manage"
	ScopeUserInfoEmail   = "https://www.googleapis.com/auth/userinfo.email"
	ScopeYouTubeReadonly = "https://www.googleapis.com/auth/youtube.readonly"
	ScopeYouTubeForceSSL = "https://www.googleapis.com/auth/youtube.force-ssl"
)

// OAuth holds one oauth2.Config per provider.
type OAuth struct {
	configs map[string]*oauth2.Config
}

func NewOAuth(cfg *config.Config) *OAuth {
	return NewOAuthWithEndpoint(cfg, googleoauth.Endpoint)
}

// NewOAuthWithEndpoint lets tests point the token exchange at a fake server.
func NewOAuthWithEndpoint(cfg *config.Config, ep oauth2.Endpoint) *OAuth {
	return &OAuth{configs: map[string]*oauth2.Config{
		db.ProviderGoogle: {
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     ep,
			RedirectURL:  cfg.RedirectURL("gmb"),
			Scopes:       []string{ScopeBusinessManage, ScopeUserInfoEmail},
		},
		db.ProviderYouTube: {
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     ep,
			RedirectURL:  cfg.RedirectURL("youtube"),
			Scopes:       []string{ScopeYouTubeReadonly, ScopeYouTubeForceSSL, ScopeUserInfoEmail},
		},
	}}
}

func (o *OAuth) Config(provider string) (*oauth2.Config, error) {
	c, ok := o.configs[provider]
	if !ok {
		return nil, errors.Wrap(ErrUnknownProvider, provider)
	}
	return c, nil
}

// AuthURL asks for offline access with a forced consent screen so Google
// always returns a refresh token.
func (o *OAuth) AuthURL(provider, state string) (string, error) {
	c, err := o.Config(provider)
	if err != nil {
		return "", err
	}
	return c.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true")), nil
}

func (o *OAuth) Exchange(ctx context.Context, provider, code string) (*oauth2.Token, error) {
	c, err := o.Config(provider)
	if err != nil {
		return nil, err
	}
	tok, err := c.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "exchange authorization code")
	}
	return tok, nil
}
