package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
)

// ErrNoExpiry is returned by TokenExpiry for tokens without an exp claim.
var ErrNoExpiry = errors.New("token has no expiry")

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// It is meant for logging and scheduling, never for authorization.
func TokenExpiry(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// OAuth2Revalidator returns a RevalidationHandler that takes a new access
// token from ts, installs it and replays the parked calls. ts must mint a
// fresh token on every call; a caching source would hand back the token the
// server just rejected.
func OAuth2Revalidator(ts oauth2.TokenSource) RevalidationHandler {
	return func(ctx context.Context, c *Client, failed *Response) error {
		tok, err := ts.Token()
		if err != nil {
			return fmt.Errorf("refresh access token: %w", err)
		}
		if tok.AccessToken == "" {
			return errors.New("refresh access token: empty access token")
		}
		c.SetBearerToken(tok.AccessToken)
		c.Recall()
		return nil
	}
}

// RefreshTokenSource returns a token source that redeems refreshToken at
// cfg's token endpoint on every call, following refresh token rotation.
func RefreshTokenSource(ctx context.Context, cfg *oauth2.Config, refreshToken string) oauth2.TokenSource {
	return &refreshTokenSource{ctx: ctx, cfg: cfg, refreshToken: refreshToken}
}

type refreshTokenSource struct {
	ctx context.Context
	cfg *oauth2.Config

	mu           sync.Mutex
	refreshToken string
}

func (s *refreshTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A token without an access token is never valid, so the config's
	// source always goes to the token endpoint.
	tok, err := s.cfg.TokenSource(s.ctx, &oauth2.Token{RefreshToken: s.refreshToken}).Token()
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}
	return tok, nil
}
