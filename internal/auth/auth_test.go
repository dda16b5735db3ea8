package auth

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/metadata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctxWithAuth(value string) context.Context {
	md := metadata.Pairs("authorization", value)
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestValidateAPIKeyRoundTrip(t *testing.T) {
	a := New("super-secret", "admin-key")

	token, err := a.IssueToken("u1", time.Hour)
	require.NoError(t, err)

	userID, err := a.ValidateAPIKey(ctxWithAuth("Bearer " + token))
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestValidateAPIKeyWithoutBearerPrefix(t *testing.T) {
	a := New("super-secret", "admin-key")

	token, err := a.IssueToken("u1", time.Hour)
	require.NoError(t, err)

	userID, err := a.ValidateAPIKey(ctxWithAuth(token))
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestValidateAPIKeyMissingMetadata(t *testing.T) {
	a := New("super-secret", "admin-key")

	_, err := a.ValidateAPIKey(context.Background())
	assert.Error(t, err)
}

func TestValidateAPIKeyExpired(t *testing.T) {
	a := New("super-secret", "admin-key")

	token, err := a.IssueToken("u1", -time.Hour)
	require.NoError(t, err)

	_, err = a.ValidateAPIKey(ctxWithAuth("Bearer " + token))
	assert.Error(t, err)
}

func TestValidateAPIKeyWrongSecret(t *testing.T) {
	issuer := New("secret-a", "admin-key")
	verifier := New("secret-b", "admin-key")

	token, err := issuer.IssueToken("u1", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateAPIKey(ctxWithAuth("Bearer " + token))
	assert.Error(t, err)
}

func TestValidateAdmin(t *testing.T) {
	a := New("super-secret", "admin-key")

	assert.NoError(t, a.ValidateAdmin(ctxWithAuth("admin-key")))
	assert.Error(t, a.ValidateAdmin(ctxWithAuth("wrong-key")))
	assert.Error(t, a.ValidateAdmin(context.Background()))
}
