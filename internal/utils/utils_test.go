package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	pad := uint64(3)
	tok, err := NewAccessToken("s3cret", 42, "MANAGER", &pad, 15)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), tok.Exp, 5*time.Second)

	claims, err := ParseAccessToken("s3cret", tok.Token)
	require.NoError(t, err)
	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), uid)
	assert.Equal(t, "MANAGER", claims.Role)
	require.NotNil(t, claims.Padalinys)
	assert.Equal(t, pad, *claims.Padalinys)
}

func TestAdminTokenHasNoPadalinys(t *testing.T) {
	tok, err := NewAccessToken("s3cret", 1, "ADMIN", nil, 15)
	require.NoError(t, err)
	claims, err := ParseAccessToken("s3cret", tok.Token)
	require.NoError(t, err)
	assert.Nil(t, claims.Padalinys)
}

func TestParseAccessTokenRejects(t *testing.T) {
	good, err := NewAccessToken("s3cret", 1, "ADMIN", nil, 15)
	require.NoError(t, err)
	expired, err := NewAccessToken("s3cret", 1, "ADMIN", nil, -1)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).
		SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"wrong key": good.Token,
		"expired":   expired.Token,
		"alg none":  none,
		"garbage":   "a.b.c",
		"no sub":    noSub,
	} {
		t.Run(name, func(t *testing.T) {
			secret := "s3cret"
			if name == "wrong key" {
				secret = "other"
			}
			_, err := ParseAccessToken(secret, raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestRefreshToken(t *testing.T) {
	rt, err := NewRefreshToken(30)
	require.NoError(t, err)
	assert.Len(t, rt.Raw, 96)
	assert.Len(t, HashRefreshRaw(rt.Raw), 64)
	assert.Equal(t, HashRefreshRaw("x"), HashRefreshRaw("x"))
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("Slaptas123", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(hash, "Slaptas123"))
	assert.False(t, VerifyPassword(hash, "slaptas123"))

	assert.NoError(t, CheckPassword("Slaptas123"))
	for _, weak := range []string{"short1", "onlyletters", "1234567890", ""} {
		assert.ErrorIs(t, CheckPassword(weak), ErrWeakPassword, weak)
	}
}
