package gmb

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"gmbdash/server/internal/db"
	"gmbdash/server/internal/observability"
)

// ConnectResult is what the OAuth callback learned.
type ConnectResult struct {
	UserID     string
	Email      string
	Accounts   int
	RedirectTo string
}

// ConnectCallback completes the Google consent flow: it redeems state,
// stores the token and records every GBP account the user manages.
func (s *Service) ConnectCallback(ctx context.Context, state, code string) (*ConnectResult, error) {
	st, tok, err := s.connector.Finish(ctx, db.ProviderGoogle, state, code)
	if err != nil {
		if st != nil {
			observability.LogOAuthEvent(st.UserID, db.ProviderGoogle, "exchange_failed", err)
		}
		return nil, err
	}

	info, err := s.gbp.GetUserInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "fetch google identity")
	}
	if err := s.tokens.Save(st.UserID, db.ProviderGoogle, tok, info.Email, map[string]string{"email": info.Email}); err != nil {
		return nil, errors.Wrap(err, "save token")
	}

	accounts, err := s.gbp.ListAccounts(ctx, tok.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "list gbp accounts")
	}
	for _, a := range accounts {
		if err := s.store.UpsertAccount(&db.GMBAccount{
			UserID:      st.UserID,
			AccountName: a.Name,
			DisplayName: a.AccountName,
			Email:       info.Email,
		}); err != nil {
			return nil, errors.Wrapf(err, "store account %s", a.Name)
		}
	}

	s.invalidate(st.UserID)
	s.activity(st.UserID, "gmb_connected",
		fmt.Sprintf("Connected %d Google Business Profile account(s) as %s", len(accounts), info.Email),
		map[string]any{"accounts": len(accounts), "email": info.Email})
	observability.LogOAuthEvent(st.UserID, db.ProviderGoogle, "connected", nil)

	return &ConnectResult{UserID: st.UserID, Email: info.Email, Accounts: len(accounts), RedirectTo: st.RedirectTo}, nil
}

// Disconnect deactivates one account. The Google token is dropped once the
// user has no active account left.
func (s *Service) Disconnect(_ context.Context, userID, accountID string) error {
	acct, err := s.store.GetAccount(userID, accountID)
	if err != nil {
		return err
	}
	if err := s.store.DeactivateAccount(userID, accountID); err != nil {
		return err
	}

	remaining, err := s.store.ListAccounts(userID)
	if err != nil {
		return err
	}
	active := 0
	for _, a := range remaining {
		if a.IsActive {
			active++
		}
	}
	if active == 0 {
		if err := s.tokens.Disconnect(userID, db.ProviderGoogle); err != nil {
			return errors.Wrap(err, "drop token")
		}
		observability.LogOAuthEvent(userID, db.ProviderGoogle, "disconnected", nil)
	}

	s.invalidate(userID)
	s.activity(userID, "gmb_disconnected", "Disconnected "+acct.DisplayName, map[string]any{"account_id": accountID})
	return nil
}
