package fixture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var (
	// ErrTokenRevoked is returned for access tokens issued before the last
	// RevokeAll
	ErrTokenRevoked = errors.New("token revoked")
	// ErrInvalidRefreshToken is returned for unknown, used or expired
	// refresh tokens
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// AccessClaims are the claims carried by an access token. Generation ties
// the token to the issuer's revocation epoch.
type AccessClaims struct {
	jwt.RegisteredClaims
	Generation int64 `json:"gen"`
}

// TokenPair is an access token with its rotating refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type refreshGrant struct {
	subject   string
	expiresAt time.Time
}

// TokenIssuer mints HS256 access tokens and opaque single-use refresh
// tokens.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	generation atomic.Int64
	now        func() time.Time

	mu      sync.Mutex
	refresh map[string]refreshGrant
}

// NewTokenIssuer creates an issuer from the token settings in cfg.
func NewTokenIssuer(cfg *Config) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
		refresh:    make(map[string]refreshGrant),
	}
}

// Issue mints a new access and refresh token for subject.
func (t *TokenIssuer) Issue(subject string) (*TokenPair, error) {
	now := t.now()
	expiresAt := now.Add(t.accessTTL)

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Generation: t.generation.Load(),
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh := uuid.New().String()
	t.mu.Lock()
	t.refresh[refresh] = refreshGrant{subject: subject, expiresAt: now.Add(t.refreshTTL)}
	t.mu.Unlock()

	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

// Verify parses an access token and checks its signature, expiry, issuer
// and revocation generation.
func (t *TokenIssuer) Verify(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Issuer != t.issuer {
		return nil, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if claims.Generation != t.generation.Load() {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Refresh consumes a refresh token and issues a new pair for its subject.
// Each refresh token works once.
func (t *TokenIssuer) Refresh(refreshToken string) (*TokenPair, error) {
	t.mu.Lock()
	grant, ok := t.refresh[refreshToken]
	delete(t.refresh, refreshToken)
	t.mu.Unlock()

	if !ok || t.now().After(grant.expiresAt) {
		return nil, ErrInvalidRefreshToken
	}
	return t.Issue(grant.subject)
}

// RevokeAll invalidates every access token issued so far. Refresh tokens
// stay valid, so clients can recover through the token endpoint.
func (t *TokenIssuer) RevokeAll() int64 {
	return t.generation.Add(1)
}

// TTL returns the access token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.accessTTL
}
