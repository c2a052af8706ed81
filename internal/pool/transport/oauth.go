package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-redis/redis/v8"
)

// cachedToken is what TokenCache stores, whether in Redis or the in-process
// fallback map.
type cachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// refreshSkew matches spec §4.1's "refreshed when within 60s of expiry".
const refreshSkew = 60 * time.Second

// TokenCache fetches and caches OAuth2 client-credentials tokens keyed by
// server id. When REDIS_ADDR is set it is backed by go-redis so multiple
// gateway processes can share one token per backend; otherwise it falls
// back to an in-process map, per SPEC_FULL.md's dependency table.
type TokenCache struct {
	redis  *redis.Client
	local  map[string]cachedToken
	mu     sync.Mutex
	client *http.Client
}

func NewTokenCache(redisAddr string) *TokenCache {
	tc := &TokenCache{local: make(map[string]cachedToken), client: &http.Client{Timeout: 10 * time.Second}}
	if redisAddr != "" {
		tc.redis = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	return tc
}

// Get returns a valid bearer token for serverID, fetching or refreshing one
// via the client-credentials grant if the cached token is absent or within
// refreshSkew of expiry.
func (tc *TokenCache) Get(ctx context.Context, serverID string, tokenURL, clientID, clientSecret string, scopes []string) (string, error) {
	now := time.Now()

	if tok, ok := tc.load(ctx, serverID); ok && tok.ExpiresAt.Sub(now) > refreshSkew {
		return tok.AccessToken, nil
	}

	tok, err := tc.fetch(ctx, tokenURL, clientID, clientSecret, scopes)
	if err != nil {
		return "", err
	}
	tc.store(ctx, serverID, tok)
	return tok.AccessToken, nil
}

func (tc *TokenCache) load(ctx context.Context, serverID string) (cachedToken, bool) {
	if tc.redis != nil {
		raw, err := tc.redis.Get(ctx, redisKey(serverID)).Bytes()
		if err != nil {
			return cachedToken{}, false
		}
		var tok cachedToken
		if json.Unmarshal(raw, &tok) != nil {
			return cachedToken{}, false
		}
		return tok, true
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tok, ok := tc.local[serverID]
	return tok, ok
}

func (tc *TokenCache) store(ctx context.Context, serverID string, tok cachedToken) {
	if tc.redis != nil {
		if raw, err := json.Marshal(tok); err == nil {
			ttl := time.Until(tok.ExpiresAt)
			if ttl > 0 {
				_ = tc.redis.Set(ctx, redisKey(serverID), raw, ttl).Err()
			}
		}
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.local[serverID] = tok
}

func redisKey(serverID string) string { return "mcpgate:oauth2:" + serverID }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (tc *TokenCache) fetch(ctx context.Context, tokenURL, clientID, clientSecret string, scopes []string) (cachedToken, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	if len(scopes) > 0 {
		scope := scopes[0]
		for _, s := range scopes[1:] {
			scope += " " + s
		}
		form.Set("scope", scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return cachedToken{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tc.client.Do(req)
	if err != nil {
		return cachedToken{}, fmt.Errorf("oauth2 token fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return cachedToken{}, fmt.Errorf("oauth2 token fetch: status %s", resp.Status)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return cachedToken{}, fmt.Errorf("oauth2 token fetch: decode: %w", err)
	}

	expiresAt := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if tr.ExpiresIn == 0 {
		if exp, ok := jwtExpiry(tr.AccessToken); ok {
			expiresAt = exp
		} else {
			expiresAt = time.Now().Add(5 * time.Minute)
		}
	}
	return cachedToken{AccessToken: tr.AccessToken, ExpiresAt: expiresAt}, nil
}

// jwtExpiry inspects a bearer token's "exp" claim without verifying its
// signature: the token came straight from the authorization server we just
// called over TLS, so this is introspection for caching purposes only, not
// an authorization decision.
func jwtExpiry(tokenString string) (time.Time, bool) {
	parser := new(jwt.Parser)
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return time.Time{}, false
	}
	switch v := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Unix(n, 0), true
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(n, 0), true
		}
	}
	return time.Time{}, false
}
