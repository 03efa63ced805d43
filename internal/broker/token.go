package broker

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"gmbdash/server/internal/db"
)

var (
	// ErrNotConnected means the user never linked the provider.
	ErrNotConnected = errors.New("provider not connected")
	// ErrReauthRequired means the stored token is dead and cannot be refreshed.
	ErrReauthRequired = errors.New("provider authorization expired, reconnect required")
)

// tokenRefreshBuffer is how long before expiry a token is refreshed.
const tokenRefreshBuffer = 5 * time.Minute

// TokenStore persists encrypted provider tokens.
type TokenStore interface {
	GetToken(userID, provider string) (*db.StoredToken, error)
	SaveToken(userID, provider string, data db.TokenData, accountRef string, metadata db.JSONB) error
	UpdateTokenData(userID, provider string, data db.TokenData) error
	DeleteToken(userID, provider string) error
}

// OAuthConfigs resolves the oauth2 client config for a provider.
type OAuthConfigs interface {
	Config(provider string) (*oauth2.Config, error)
}

// TokenBroker hands out provider access tokens, refreshing them
// transparently when they are about to expire.
type TokenBroker struct {
	store   TokenStore
	configs OAuthConfigs
	client  *http.Client
	group   singleflight.Group
	now     func() time.Time

	refreshes metric.Int64Counter
}

func NewTokenBroker(store TokenStore, configs OAuthConfigs) *TokenBroker {
	refreshes, err := otel.Meter("gmbdash/broker").Int64Counter("oauth.token.refreshes",
		metric.WithDescription("OAuth token refresh attempts by provider and result"))
	if err != nil {
		log.Printf("[broker] refresh counter unavailable: %v", err)
	}
	return &TokenBroker{
		store:     store,
		configs:   configs,
		client:    &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
		refreshes: refreshes,
	}
}

// Token returns a usable access token for (user, provider).
// A failed refresh falls back to the stored token while it is still valid.
func (b *TokenBroker) Token(ctx context.Context, userID, provider string) (*oauth2.Token, error) {
	stored, err := b.store.GetToken(userID, provider)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotConnected
		}
		return nil, errors.Wrap(err, "load token")
	}

	now := b.now()
	if stored.Data.RefreshToken == "" || !needsRefresh(stored.Data.Expiry, now) {
		if !stored.Data.Expiry.IsZero() && !now.Before(stored.Data.Expiry) {
			return nil, ErrReauthRequired
		}
		return toOAuth2(stored.Data), nil
	}

	log.Printf("[broker] token for %s expiring at %s, refreshing", provider, stored.Data.Expiry.Format(time.RFC3339))
	// The refresh is shared by every waiter, so it must outlive this caller.
	refreshCtx := context.WithoutCancel(ctx)
	v, err, shared := b.group.Do(userID+":"+provider, func() (any, error) {
		return b.refresh(refreshCtx, userID, provider, stored.Data)
	})
	if err != nil {
		log.Printf("[broker] token refresh failed for %s: %v", provider, err)
		if now.Before(stored.Data.Expiry) {
			return toOAuth2(stored.Data), nil
		}
		return nil, errors.Wrap(ErrReauthRequired, err.Error())
	}
	if shared {
		log.Printf("[broker] token refresh for %s shared with concurrent caller", provider)
	}
	return v.(*oauth2.Token), nil
}

// needsRefresh reports whether a token expiring at expiry should be renewed.
// Tokens without an expiry never are.
func needsRefresh(expiry, now time.Time) bool {
	if expiry.IsZero() {
		return false
	}
	return !now.Before(expiry.Add(-tokenRefreshBuffer))
}

func (b *TokenBroker) refresh(ctx context.Context, userID, provider string, current db.TokenData) (*oauth2.Token, error) {
	ctx, span := otel.Tracer("gmbdash/broker").Start(ctx, "broker.refresh")
	span.SetAttributes(attribute.String("provider", provider))
	defer span.End()

	cfg, err := b.configs.Config(provider)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.client)
	fresh, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	if err != nil {
		b.count(ctx, provider, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		return nil, errors.Wrap(err, "refresh token")
	}
	b.count(ctx, provider, "ok")

	next := fromOAuth2(fresh)
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}
	if len(next.Scopes) == 0 {
		next.Scopes = current.Scopes
	}
	if err := b.store.UpdateTokenData(userID, provider, next); err != nil {
		// The new token is still good for this request.
		log.Printf("[broker] failed to persist refreshed %s token: %v", provider, err)
	}
	log.Printf("[broker] token refreshed for %s", provider)
	return toOAuth2(next), nil
}

func (b *TokenBroker) count(ctx context.Context, provider, result string) {
	if b.refreshes == nil {
		return
	}
	b.refreshes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("result", result),
	))
}

// Save stores a token obtained from an authorization code exchange.
func (b *TokenBroker) Save(userID, provider string, tok *oauth2.Token, accountRef string, metadata any) error {
	data := fromOAuth2(tok)
	if data.AccessToken == "" {
		return errors.New("empty access token")
	}
	return b.store.SaveToken(userID, provider, data, accountRef, db.MustJSONB(metadata))
}

// Disconnect forgets the user's token for provider. Missing tokens are fine.
func (b *TokenBroker) Disconnect(userID, provider string) error {
	if err := b.store.DeleteToken(userID, provider); err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}
	return nil
}

func toOAuth2(d db.TokenData) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		TokenType:    d.TokenType,
		Expiry:       d.Expiry,
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	return tok
}

func fromOAuth2(t *oauth2.Token) db.TokenData {
	d := db.TokenData{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
	if scope, ok := t.Extra("scope").(string); ok && scope != "" {
		d.Scopes = strings.Fields(scope)
	}
	return d
}
