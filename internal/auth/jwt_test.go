package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTAuthenticator_Identity(t *testing.T) {
	a := NewJWTAuthenticator("secret", "tosho", "tosho", time.Hour)

	tok, err := a.GenerateToken("user-1")
	require.NoError(t, err)

	id, err := a.Identity(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	a := NewJWTAuthenticator("secret", "tosho", "tosho", time.Hour)

	other, err := NewJWTAuthenticator("other", "tosho", "tosho", time.Hour).GenerateToken("u")
	require.NoError(t, err)
	wrongAud, err := NewJWTAuthenticator("secret", "admin", "tosho", time.Hour).GenerateToken("u")
	require.NoError(t, err)
	expired, err := NewJWTAuthenticator("secret", "tosho", "tosho", -time.Minute).GenerateToken("u")
	require.NoError(t, err)
	noSubject, err := a.GenerateToken("  ")
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"garbage":    "not-a-token",
		"bad secret": other,
		"audience":   wrongAud,
		"expired":    expired,
		"no subject": noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Identity(tok)
			assert.Error(t, err)
		})
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))

	ctx = WithIdentity(ctx, &Identity{UserID: "u1"})
	require.NotNil(t, FromContext(ctx))
	assert.Equal(t, "u1", FromContext(ctx).UserID)
}
