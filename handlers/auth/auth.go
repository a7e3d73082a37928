// Package auth is the admission control point for every connection: it
// resolves handshake credentials to identities via cache-or-verify, failing
// closed on any ambiguity.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"rfq-realtime/core"
)

// verdictTTL bounds how long a successful verification is reused before the
// backend is consulted again.
const verdictTTL = time.Hour

// Authenticator caches verification verdicts so repeat connections with the
// same credential skip the backend round-trip. Failed verifications are
// never cached.
type Authenticator struct {
	cache    core.Cache
	verifier Verifier
}

// NewAuthenticator wires the authenticator from its dependencies.
func NewAuthenticator(cache core.Cache, verifier Verifier) *Authenticator {
	return &Authenticator{cache: cache, verifier: verifier}
}

// CacheKey derives the credential-cache key for a (credential, scope) pair.
func CacheKey(token string, userType core.UserType) string {
	return fmt.Sprintf("auth:%s:%s", userType, token)
}

// Authenticate resolves the credential to an identity. Missing credentials,
// invalid verdicts, and verification transport failures are all reported as
// core.ErrUnauthenticated: callers cannot and must not distinguish them.
func (a *Authenticator) Authenticate(ctx context.Context, token string, userType core.UserType) (*core.User, error) {
	if token == "" || !userType.Valid() {
		return nil, core.ErrUnauthenticated
	}

	key := CacheKey(token, userType)
	var cached core.User
	if a.cache.Get(ctx, key, &cached) {
		logrus.WithField("userType", userType).Debug("Credential verdict found in cache")
		return &cached, nil
	}

	user, err := a.verifier.Verify(ctx, token, userType)
	if err != nil {
		logrus.WithError(err).Warn("Token verification failed")
		return nil, core.ErrUnauthenticated
	}
	if user == nil {
		return nil, core.ErrUnauthenticated
	}

	a.cache.Set(ctx, key, user, verdictTTL)
	return user, nil
}

// Invalidate drops the cached verdict for a credential, forcing the next
// connection with it to re-verify.
func (a *Authenticator) Invalidate(ctx context.Context, token string, userType core.UserType) {
	a.cache.Delete(ctx, CacheKey(token, userType))
}
