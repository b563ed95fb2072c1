package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/locvowork/task_reconciler/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// TasksScope is the OAuth scope needed for task read and write.
const TasksScope = "https://www.googleapis.com/auth/tasks"

// TokenProvider turns stored credentials into per-user token sources.
// Refreshed tokens are written back to the store.
type TokenProvider struct {
	store  domain.CredentialStore
	config *oauth2.Config
}

// NewTokenProvider creates a TokenProvider for the Google OAuth endpoint.
func NewTokenProvider(store domain.CredentialStore, clientID, clientSecret string) *TokenProvider {
	return &TokenProvider{
		store: store,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{TasksScope},
		},
	}
}

// TokenSource returns a token source bound to userID's credential.
func (p *TokenProvider) TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	cred, err := p.store.GetCredential(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred.SyncDisabled {
		return nil, fmt.Errorf("%s: %s: %w", userID, cred.DisabledReason, domain.ErrSyncDisabled)
	}
	tok := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       cred.Expiry,
	}
	// The refresh must not die with the request that first triggered it.
	base := p.config.TokenSource(context.Background(), tok)
	return &persistingSource{
		ctx:    ctx,
		userID: userID,
		store:  p.store,
		src:    oauth2.ReuseTokenSource(tok, base),
		last:   tok.AccessToken,
	}, nil
}

// DisableSync forwards to the credential store.
func (p *TokenProvider) DisableSync(ctx context.Context, userID, reason string) error {
	return p.store.DisableSync(ctx, userID, reason)
}

type persistingSource struct {
	ctx    context.Context
	userID string
	store  domain.CredentialStore
	src    oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		err := s.store.SaveCredential(s.ctx, &domain.Credential{
			UserID:       s.userID,
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			TokenType:    tok.TokenType,
			Expiry:       tok.Expiry,
		})
		if err != nil {
			return nil, fmt.Errorf("persist refreshed token: %w", err)
		}
	}
	return tok, nil
}
