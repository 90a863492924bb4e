package bead

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/akylbek/invoicing-system/payment-reconciler/internal/models"
)

// Tokens without a provider-announced lifetime are treated as expiring after
// this long, so a stale token costs at most one extra auth round trip.
const defaultTokenTTL = 4 * time.Minute

// TokenStore caches access tokens keyed by credential identity. Refresh is
// single-flight: N concurrent callers needing a token for the same credential
// trigger exactly one authentication request.
type TokenStore struct {
	auth Authenticator
	now  func() time.Time

	mu     sync.RWMutex
	tokens map[string]models.AccessToken
	group  singleflight.Group
}

func NewTokenStore(auth Authenticator) *TokenStore {
	return &TokenStore{
		auth:   auth,
		now:    time.Now,
		tokens: make(map[string]models.AccessToken),
	}
}

// Token returns a cached non-expired token for the credential, authenticating
// lazily when the cache holds nothing usable.
func (s *TokenStore) Token(ctx context.Context, cred models.Credential) (models.AccessToken, error) {
	key := cred.CacheKey()

	s.mu.RLock()
	token, ok := s.tokens[key]
	s.mu.RUnlock()
	if ok && !token.Expired(s.now()) {
		return token, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Another caller may have refreshed while this one waited.
		s.mu.RLock()
		cached, ok := s.tokens[key]
		s.mu.RUnlock()
		if ok && !cached.Expired(s.now()) {
			return cached, nil
		}

		fresh, err := s.auth.Authenticate(ctx, cred)
		if err != nil {
			return models.AccessToken{}, err
		}
		if fresh.ExpiresAt.IsZero() {
			fresh.ExpiresAt = fresh.ObtainedAt.Add(defaultTokenTTL)
		}

		s.mu.Lock()
		s.tokens[key] = fresh
		s.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return models.AccessToken{}, err
	}
	return v.(models.AccessToken), nil
}

// Invalidate drops the cached token for the credential, typically after the
// provider answered 401 with it.
func (s *TokenStore) Invalidate(cred models.Credential) {
	s.mu.Lock()
	delete(s.tokens, cred.CacheKey())
	s.mu.Unlock()
}
