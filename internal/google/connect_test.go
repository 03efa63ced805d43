package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"gmbdash/server/internal/db"
)

type memStates struct {
	states map[string]db.OAuthState
}

func (m *memStates) CreateState(st *db.OAuthState) error {
	m.states[st.State] = *st
	return nil
}

func (m *memStates) ConsumeState(state string, now time.Time) (*db.OAuthState, error) {
	st, ok := m.states[state]
	if !ok {
		return nil, db.ErrNotFound
	}
	delete(m.states, state)
	if !now.Before(st.ExpiresAt) {
		return nil, db.ErrStateExpired
	}
	return &st, nil
}

func newTestConnector(t *testing.T) (*Connector, *memStates) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	states := &memStates{states: map[string]db.OAuthState{}}
	o := NewOAuthWithEndpoint(testConfig(), oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: srv.URL})
	return NewConnector(states, o), states
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestConnectorRoundTrip(t *testing.T) {
	c, states := newTestConnector(t)

	authURL, err := c.Start("u1", db.ProviderGoogle, "/dashboard/locations")
	require.NoError(t, err)
	state := stateFrom(t, authURL)
	require.Len(t, state, 64)
	assert.Equal(t, "u1", states.states[state].UserID)

	st, tok, err := c.Finish(context.Background(), db.ProviderGoogle, state, "code")
	require.NoError(t, err)
	assert.Equal(t, "u1", st.UserID)
	assert.Equal(t, "/dashboard/locations", st.RedirectTo)
	assert.Equal(t, "at", tok.AccessToken)

	_, _, err = c.Finish(context.Background(), db.ProviderGoogle, state, "code")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConnectorRejects(t *testing.T) {
	c, states := newTestConnector(t)

	t.Run("expired", func(t *testing.T) {
		states.states["old"] = db.OAuthState{State: "old", UserID: "u1", Provider: db.ProviderGoogle, ExpiresAt: time.Now().Add(-time.Second)}
		_, _, err := c.Finish(context.Background(), db.ProviderGoogle, "old", "code")
		assert.True(t, errors.Is(err, ErrInvalidState))
	})

	t.Run("wrong provider", func(t *testing.T) {
		authURL, err := c.Start("u1", db.ProviderYouTube, "/")
		require.NoError(t, err)
		_, _, err = c.Finish(context.Background(), db.ProviderGoogle, stateFrom(t, authURL), "code")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("missing code", func(t *testing.T) {
		_, _, err := c.Finish(context.Background(), db.ProviderGoogle, "s", "")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := c.Start("u1", "facebook", "/")
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})
}

func TestSafeRedirect(t *testing.T) {
	tests := map[string]string{
		"/dashboard":        "/dashboard",
		"":                  "/",
		"https://evil.com":  "/",
		"//evil.com":        "/",
		"/\\evil.com":       "/",
		"/settings?tab=gmb": "/settings?tab=gmb",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeRedirect(in), in)
	}
}
