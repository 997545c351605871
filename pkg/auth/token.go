// Package auth exchanges an SSO refresh token for the short-lived bearer
// token required by authenticated ESI endpoints such as player structures.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// DefaultTokenURL is the EVE SSO token endpoint.
const DefaultTokenURL = "https://login.eveonline.com/v2/oauth/token"

var refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "marketwatch_auth_refresh_total",
	Help: "Bearer token refresh attempts by result",
}, []string{"result"})

// Config holds the SSO application credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string

	// HTTPClient overrides the client used for the token exchange.
	HTTPClient *http.Client
}

// Enabled reports whether enough credentials are present to refresh tokens.
func (c Config) Enabled() bool {
	return c.ClientID != "" && c.RefreshToken != ""
}

// Provider hands out the current bearer token. It is safe for concurrent use;
// workers read the token while the watcher refreshes it.
type Provider struct {
	oauth  oauth2.Config
	client *http.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	refreshToken string
	accessToken  string
}

// NewProvider creates a provider with no access token. Refresh must be called
// before authenticated requests can succeed.
func NewProvider(cfg Config, logger zerolog.Logger) *Provider {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	return &Provider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		client:       cfg.HTTPClient,
		logger:       logger,
		refreshToken: cfg.RefreshToken,
	}
}

// Token returns the current access token, or "" when none is available.
func (p *Provider) Token() string {
	if p == nil {
		return ""
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.accessToken
}

// Refresh exchanges the refresh token for a new access token. On failure the
// access token is cleared so that authenticated endpoints are skipped instead
// of being called with a token that may already be invalid.
func (p *Provider) Refresh(ctx context.Context) error {
	p.mu.RLock()
	refresh := p.refreshToken
	p.mu.RUnlock()

	if p.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	}

	tok, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		p.Clear()
		refreshTotal.WithLabelValues("failure").Inc()
		p.logger.Error().Err(err).Msg("Bearer token refresh failed, clearing token")
		return fmt.Errorf("refresh token: %w", err)
	}

	p.mu.Lock()
	p.accessToken = tok.AccessToken
	// SSO may rotate the refresh token.
	if tok.RefreshToken != "" {
		p.refreshToken = tok.RefreshToken
	}
	p.mu.Unlock()

	refreshTotal.WithLabelValues("success").Inc()
	p.logger.Debug().Time("expiry", tok.Expiry).Msg("Bearer token refreshed")
	return nil
}

// Clear drops the access token.
func (p *Provider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessToken = ""
}
