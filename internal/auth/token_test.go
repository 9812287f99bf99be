package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key-thirty-two-chars!!"

func TestNewTokenService_RejectsShortKey(t *testing.T) {
	_, err := NewTokenService("too-short")
	assert.Error(t, err)
}

func TestTokenService_GenerateAndValidate(t *testing.T) {
	svc, err := NewTokenService(testSigningKey)
	require.NoError(t, err)

	userID := uuid.New()
	token, expiresAt, err := svc.GenerateAccessToken(userID, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(svc.AccessTokenTTL()), expiresAt, time.Minute)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.Equal(t, "sweeply", claims.Issuer)
}

func TestTokenService_RejectsWrongKey(t *testing.T) {
	svc1, _ := NewTokenService(testSigningKey)
	svc2, _ := NewTokenService("another-signing-key-32-chars-long!!")

	token, _, err := svc1.GenerateAccessToken(uuid.New(), "alice")
	require.NoError(t, err)

	_, err = svc2.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestTokenService_RejectsGarbage(t *testing.T) {
	svc, _ := NewTokenService(testSigningKey)

	_, err := svc.ValidateAccessToken("not-a-jwt")
	assert.Error(t, err)

	_, err = svc.ValidateAccessToken("")
	assert.Error(t, err)
}
