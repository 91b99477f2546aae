package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/driveindex/driveindex/internal/tokenfile"
)

// StaticToken is a fixed bearer token, for API keys and tests.
type StaticToken string

// Token returns the token itself.
func (s StaticToken) Token() (string, error) {
	return string(s), nil
}

// OAuthSettings identifies the OAuth2 client used to refresh saved tokens.
type OAuthSettings struct {
	ClientID string
	TokenURL string
	Scopes   []string
}

func (s OAuthSettings) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID: s.ClientID,
		Scopes:   s.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  s.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// TokenSourceFromPath loads a saved token and returns a TokenSource that
// refreshes it when expired and writes every refreshed token back to the
// file. Returns ErrNotLoggedIn if no token file exists.
//
// ctx must outlive the TokenSource: refreshes run on it.
func TokenSourceFromPath(ctx context.Context, tokenPath string, settings OAuthSettings, logger *slog.Logger) (TokenSource, error) {
	tok, meta, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Info("loaded saved token",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", expired),
	)

	src := settings.config().TokenSource(ctx, tok)

	return &persistingSource{
		src:    src,
		path:   tokenPath,
		meta:   meta,
		last:   tok.AccessToken,
		logger: logger,
	}, nil
}

// persistingSource adapts oauth2.TokenSource to TokenSource and saves the
// token file whenever the access token changes.
type persistingSource struct {
	src    oauth2.TokenSource
	path   string
	meta   map[string]string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (string, error) {
	t, err := p.src.Token()
	if err != nil {
		p.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("remote: obtaining token: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if t.AccessToken != p.last {
		p.last = t.AccessToken
		p.logger.Info("token refreshed",
			slog.String("path", p.path),
			slog.Time("new_expiry", t.Expiry),
		)

		if err := tokenfile.Save(p.path, t, p.meta); err != nil {
			p.logger.Warn("failed to persist refreshed token",
				slog.String("path", p.path),
				slog.String("error", err.Error()),
			)
		}
	}

	return t.AccessToken, nil
}
