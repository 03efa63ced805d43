package google

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/oauth2"

	"gmbdash/server/internal/auth"
	"gmbdash/server/internal/db"
)

// ErrInvalidState covers unknown, reused, expired and mismatched states.
var ErrInvalidState = errors.New("invalid or expired oauth state")

// StateStore persists single-use OAuth states.
type StateStore interface {
	CreateState(st *db.OAuthState) error
	ConsumeState(state string, now time.Time) (*db.OAuthState, error)
}

// Connector runs both legs of the authorization-code flow.
type Connector struct {
	states StateStore
	oauth  *OAuth
	now    func() time.Time
}

func NewConnector(states StateStore, oauth *OAuth) *Connector {
	return &Connector{states: states, oauth: oauth, now: time.Now}
}

// Start records a fresh state for userID and returns the consent URL.
// redirectTo is a dashboard path the callback returns the browser to.
func (c *Connector) Start(userID, provider, redirectTo string) (string, error) {
	if _, err := c.oauth.Config(provider); err != nil {
		return "", err
	}
	state, err := auth.NewState()
	if err != nil {
		return "", errors.Wrap(err, "generate state")
	}
	if err := c.states.CreateState(&db.OAuthState{
		State:      state,
		UserID:     userID,
		Provider:   provider,
		RedirectTo: SafeRedirect(redirectTo),
		ExpiresAt:  c.now().Add(auth.StateTTL),
	}); err != nil {
		return "", errors.Wrap(err, "store state")
	}
	return c.oauth.AuthURL(provider, state)
}

// Finish redeems state for provider and exchanges code for a token.
func (c *Connector) Finish(ctx context.Context, provider, state, code string) (*db.OAuthState, *oauth2.Token, error) {
	if state == "" || code == "" {
		return nil, nil, ErrInvalidState
	}
	st, err := c.states.ConsumeState(state, c.now())
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, db.ErrStateExpired):
		return nil, nil, errors.Wrap(ErrInvalidState, err.Error())
	case err != nil:
		return nil, nil, errors.Wrap(err, "consume state")
	}
	if st.Provider != provider {
		return nil, nil, ErrInvalidState
	}
	tok, err := c.oauth.Exchange(ctx, provider, code)
	if err != nil {
		return st, nil, err
	}
	return st, tok, nil
}

// SafeRedirect keeps only same-site absolute paths.
func SafeRedirect(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return "/"
	}
	return p
}
