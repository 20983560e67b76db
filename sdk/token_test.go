package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func signedToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	got, err := TokenExpiry(signedToken(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)}))
	require.NoError(t, err)
	assert.True(t, exp.Equal(got), "got %v want %v", got, exp)

	_, err = TokenExpiry(signedToken(t, jwt.RegisteredClaims{Subject: "birb"}))
	assert.ErrorIs(t, err, ErrNoExpiry)

	_, err = TokenExpiry("opaque-token")
	assert.Error(t, err)
}

// oauthServer issues access tokens for refresh_token grants and rotates the
// refresh token on every use.
func oauthServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var seen []string
	issued := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		seen = append(seen, r.Form.Get("refresh_token"))
		issued++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access-" + string(rune('0'+issued)),
			"refresh_token": "refresh-" + string(rune('0'+issued)),
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(server.Close)
	return server, &seen
}

func TestRefreshTokenSource(t *testing.T) {
	server, seen := oauthServer(t)
	cfg := &oauth2.Config{ClientID: "cli", Endpoint: oauth2.Endpoint{TokenURL: server.URL}}

	ts := RefreshTokenSource(context.Background(), cfg, "refresh-0")

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)

	tok, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok.AccessToken, "every call redeems the refresh token")

	assert.Equal(t, []string{"refresh-0", "refresh-1"}, *seen)
}

type staticSource struct {
	tok *oauth2.Token
	err error
}

func (s staticSource) Token() (*oauth2.Token, error) { return s.tok, s.err }

func TestOAuth2Revalidator(t *testing.T) {
	tests := []struct {
		name      string
		source    oauth2.TokenSource
		wantErr   bool
		wantToken string
	}{
		{"installs the access token", staticSource{tok: &oauth2.Token{AccessToken: "new"}}, false, "new"},
		{"source error", staticSource{err: errors.New("invalid_grant")}, true, "old"},
		{"empty access token", staticSource{tok: &oauth2.Token{}}, true, "old"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _, _ := newTestClient(t, "http://localhost:1")
			client.SetBearerToken("old")

			err := OAuth2Revalidator(tt.source)(context.Background(), client, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			client.Wait()

			token, _ := client.BearerToken()
			assert.Equal(t, tt.wantToken, token)
		})
	}
}
