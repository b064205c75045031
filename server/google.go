package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// IdentityProvider represents the minimal behaviour required from the
// upstream provider.
type IdentityProvider interface {
	AuthCodeURL(state, challenge string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	Profile(ctx context.Context, tok *oauth2.Token) (ProviderUser, error)
}

// GoogleProvider wraps Google's OAuth2/OIDC endpoints.
type GoogleProvider struct {
	provider    *oidc.Provider
	oauthConfig *oauth2.Config
	logger      *slog.Logger
}

// NewGoogleProvider initializes the provider via OIDC discovery.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig, logger *slog.Logger) (*GoogleProvider, error) {
	op, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover provider: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Endpoint:     op.Endpoint(),
		Scopes:       cfg.Scopes,
	}

	return &GoogleProvider{
		provider:    op,
		oauthConfig: oauthCfg,
		logger:      logger,
	}, nil
}

// AuthCodeURL constructs the authorization request. access_type=offline plus
// prompt=consent makes Google issue a refresh token even on repeat consent.
func (p *GoogleProvider) AuthCodeURL(state, challenge string) string {
	return p.oauthConfig.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange redeems the authorization code, presenting the PKCE verifier and
// the same redirect URI used on the authorization request.
func (p *GoogleProvider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	tok, err := p.oauthConfig.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", verifier),
	)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return tok, nil
}

// Profile fetches the user's profile from the provider's userinfo endpoint.
func (p *GoogleProvider) Profile(ctx context.Context, tok *oauth2.Token) (ProviderUser, error) {
	info, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return ProviderUser{}, fmt.Errorf("fetch userinfo: %w", err)
	}

	var claims struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := info.Claims(&claims); err != nil {
		return ProviderUser{}, fmt.Errorf("parse userinfo claims: %w", err)
	}

	return ProviderUser{
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

// TokenSource returns a refreshing token source for the user's credential
// bundle, suitable for authenticating Sheets API calls.
func (p *GoogleProvider) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return p.oauthConfig.TokenSource(ctx, tok)
}
