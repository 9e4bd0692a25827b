package directory

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// oidcEndpoints are the endpoints read from an issuer's well-known
// configuration document
type oidcEndpoints struct {
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string
	JWKSURL          string
}

// discoverOIDCEndpoints resolves an issuer's endpoints via OIDC provider
// discovery. Only the well-known document is fetched; no token exchange
// happens here.
func (s *Service) discoverOIDCEndpoints(ctx context.Context, issuer string) (*oidcEndpoints, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}

	var claims struct {
		JWKSURL     string `json:"jwks_uri"`
		UserInfoURL string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse oidc discovery document: %w", err)
	}

	endpoint := provider.Endpoint()
	return &oidcEndpoints{
		AuthorizationURL: endpoint.AuthURL,
		TokenURL:         endpoint.TokenURL,
		UserInfoURL:      claims.UserInfoURL,
		JWKSURL:          claims.JWKSURL,
	}, nil
}
