// Package auth verifies the bearer tokens and admin preshared key carried
// in RPC request metadata (spec §4.8).
//
// The teacher's call sites (internal/api/balance_service.go:
// `s.auth.ValidateAPIKey(ctx)`, cmd/api/main.go's
// `auth.NewAuthenticator(redisClient, logger)`) reference an
// internal/auth package that is absent from the retrieved snapshot — the
// retrieval pack never captured it, consistent with spec §2's "heavily
// duplicated across successive rewrites" note that this rewrite never
// finished the auth package. This file is built fresh against those call
// sites' exact signature (`ValidateAPIKey(ctx) (platformUserID string, err
// error)`) using github.com/golang-jwt/jwt/v5 for HMAC-signed bearer
// tokens, since spec §4.8 calls for signature and expiry verification, not
// a bare opaque-key lookup against Redis.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"
)

const metadataKey = "authorization"

// Claims is the payload this service expects inside a bearer token: the
// authenticated platform user id plus the standard registered claims
// (expiry in particular).
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Authenticator verifies bearer tokens against a shared HMAC secret and
// the admin key against a preshared constant-time comparison, mirroring
// the teacher's auth.Authenticator call shape.
type Authenticator struct {
	tokenSecret []byte
	adminKey    string
}

// New builds an Authenticator. tokenSecret signs/verifies bearer JWTs;
// adminKey gates administrative RPCs.
func New(tokenSecret, adminKey string) *Authenticator {
	return &Authenticator{tokenSecret: []byte(tokenSecret), adminKey: adminKey}
}

// ValidateAPIKey extracts the bearer token from the "authorization"
// metadata key, verifies its HMAC signature and expiry, and returns the
// platform user id it carries.
func (a *Authenticator) ValidateAPIKey(ctx context.Context) (string, error) {
	token, err := bearerFromContext(ctx)
	if err != nil {
		return "", err
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.tokenSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid bearer token: %w", err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("bearer token failed validation")
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("bearer token missing user_id claim")
	}

	return claims.UserID, nil
}

// ValidateAdmin checks the preshared admin key, carried under the same
// "authorization" metadata key as a raw value rather than a JWT. It checks
// only that key; it does not also verify a bearer token.
func (a *Authenticator) ValidateAdmin(ctx context.Context) error {
	token, err := bearerFromContext(ctx)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.adminKey)) != 1 {
		return fmt.Errorf("invalid admin key")
	}
	return nil
}

// IssueToken mints a bearer token for userID, valid for ttl. Used by the
// tests; the platform's own auth surface (out of scope
// per spec §1) is the normal issuer in production.
func (a *Authenticator) IssueToken(userID string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.tokenSecret)
}

func bearerFromContext(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", fmt.Errorf("missing request metadata")
	}
	values := md.Get(metadataKey)
	if len(values) == 0 || values[0] == "" {
		return "", fmt.Errorf("missing %q metadata", metadataKey)
	}
	raw := values[0]
	const prefix = "Bearer "
	if len(raw) > len(prefix) && raw[:len(prefix)] == prefix {
		return raw[len(prefix):], nil
	}
	return raw, nil
}
