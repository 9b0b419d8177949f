// Package auth owns the Google OAuth token shared by the calendar and gmail
// connectors.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"

	"intelbrief.app/brief/core/config"
	"intelbrief.app/brief/internal/domain"
	"intelbrief.app/brief/internal/store"
)

const source = "google"

// Scopes requested during consent.
var Scopes = []string{gmail.GmailReadonlyScope, calendar.CalendarReadonlyScope}

// ConsentFunc obtains a fresh token from the user for oc.
type ConsentFunc func(ctx context.Context, oc *oauth2.Config) (*oauth2.Token, error)

type Provider struct {
	tokenPath       string
	credentialsPath string
	interactive     bool
	consent         ConsentFunc

	mu     sync.Mutex
	source oauth2.TokenSource
}

type Option func(*Provider)

func WithConsent(fn ConsentFunc) Option {
	return func(p *Provider) {
		p.consent = fn
	}
}

func NewProvider(cfg config.GoogleConfig, opts ...Option) *Provider {
	p := &Provider{
		tokenPath:       cfg.TokenPath,
		credentialsPath: cfg.CredentialsPath,
		interactive:     cfg.Interactive,
		consent:         Consent{Out: os.Stderr}.Run,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns a usable access token. A valid stored token is returned
// as is; an expired one is refreshed and persisted. Without a refreshable
// token it runs the consent flow when interactive, and otherwise fails with
// ErrSetupRequired.
func (p *Provider) Acquire(ctx context.Context) (*oauth2.Token, error) {
	tok, _, err := p.acquire(ctx)
	return tok, err
}

// TokenSource returns a source that refreshes on demand and persists every
// new token. The same source is shared by every caller.
func (p *Provider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source != nil {
		return p.source, nil
	}

	tok, oc, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	if oc == nil {
		// No client secret: the token is usable until it expires but cannot
		// be refreshed.
		p.source = oauth2.StaticTokenSource(tok)
		return p.source, nil
	}

	// Later connectors refresh through this source after ctx has ended.
	p.source = &persistingSource{
		base: oc.TokenSource(context.WithoutCancel(ctx), tok),
		path: p.tokenPath,
		last: tok,
	}
	return p.source, nil
}

// Login runs the consent flow unconditionally and stores the result.
func (p *Provider) Login(ctx context.Context) (*oauth2.Token, error) {
	oc, err := p.clientConfig()
	if err != nil {
		return nil, p.setupRequired(err)
	}

	tok, err := p.consent(ctx, oc)
	if err != nil {
		return nil, domain.NewSetupError(source, fmt.Errorf("consent flow: %w", err))
	}
	if err := p.save(tok); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.source = nil
	p.mu.Unlock()
	return tok, nil
}

func (p *Provider) acquire(ctx context.Context) (*oauth2.Token, *oauth2.Config, error) {
	tok, tokErr := p.loadToken()
	if tokErr != nil && !errors.Is(tokErr, os.ErrNotExist) {
		slog.WarnContext(ctx, "stored google token unreadable", "path", p.tokenPath, "error", tokErr)
	}

	oc, ocErr := p.clientConfig()

	if tok != nil && tok.Valid() {
		if ocErr != nil {
			return tok, nil, nil
		}
		return tok, oc, nil
	}

	if tok != nil && tok.RefreshToken != "" {
		if ocErr != nil {
			return nil, nil, p.setupRequired(ocErr)
		}
		fresh, err := oc.TokenSource(ctx, tok).Token()
		if err != nil {
			return nil, nil, domain.NewAuthExpiredError(source, fmt.Errorf("%w: %v", domain.ErrAuthExpired, err))
		}
		if err := p.save(fresh); err != nil {
			return nil, nil, err
		}
		slog.InfoContext(ctx, "refreshed google token")
		return fresh, oc, nil
	}

	if p.interactive && ocErr == nil {
		fresh, err := p.consent(ctx, oc)
		if err != nil {
			return nil, nil, domain.NewSetupError(source, fmt.Errorf("consent flow: %w", err))
		}
		if err := p.save(fresh); err != nil {
			return nil, nil, err
		}
		return fresh, oc, nil
	}

	if ocErr == nil {
		ocErr = errors.New("no stored token")
	}
	return nil, nil, p.setupRequired(ocErr)
}

func (p *Provider) setupRequired(cause error) error {
	return domain.NewSetupError(source, fmt.Errorf(
		"%w: %v\n"+
			"  1. Create an OAuth client (Desktop app) in Google Cloud Console with the Gmail and Calendar APIs enabled\n"+
			"  2. Download the client secret JSON to %s\n"+
			"  3. Run `intelbrief auth google` to write %s",
		domain.ErrSetupRequired, cause, p.credentialsPath, p.tokenPath))
}

func (p *Provider) loadToken() (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := store.ReadJSON(p.tokenPath, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token file holds no credentials")
	}
	return &tok, nil
}

func (p *Provider) clientConfig() (*oauth2.Config, error) {
	raw, err := os.ReadFile(p.credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading client secret: %w", err)
	}
	oc, err := google.ConfigFromJSON(raw, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}
	return oc, nil
}

func (p *Provider) save(tok *oauth2.Token) error {
	if err := store.WriteJSON(p.tokenPath, tok, store.PrivateFilePerms); err != nil {
		return domain.NewSetupError(source, fmt.Errorf("saving token: %w", err))
	}
	return nil
}

// persistingSource writes the token back to disk whenever the underlying
// source hands out a new one.
type persistingSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, domain.NewAuthExpiredError(source, fmt.Errorf("%w: %v", domain.ErrAuthExpired, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken {
		if err := store.WriteJSON(s.path, tok, store.PrivateFilePerms); err != nil {
			slog.Warn("failed to persist refreshed google token", "path", s.path, "error", err)
		}
		s.last = tok
	}
	return tok, nil
}
