package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	id := uuid.New()

	raw, err := tokens.Issue(id, RoleAdmin)
	require.NoError(t, err)

	p, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, id, p.UserID)
	assert.Equal(t, RoleAdmin, p.Role)
}

func TestTokensRejectExpired(t *testing.T) {
	tokens := NewTokens("secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	tokens.now = func() time.Time { return issued }

	raw, err := tokens.Issue(uuid.New(), RolePatient)
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensRejectWrongSecret(t *testing.T) {
	raw, err := NewTokens("one", time.Hour).Issue(uuid.New(), RolePatient)
	require.NoError(t, err)

	_, err = NewTokens("two", time.Hour).Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensRejectForeignClaims(t *testing.T) {
	sign := func(c jwt.Claims) string {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("secret"))
		require.NoError(t, err)
		return raw
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	tokens := NewTokens("secret", time.Hour)

	cases := map[string]string{
		"non uuid subject": sign(claims{Role: RolePatient, RegisteredClaims: jwt.RegisteredClaims{Subject: "42", ExpiresAt: exp}}),
		"unknown role":     sign(claims{Role: "ROOT", RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString(), ExpiresAt: exp}}),
		"no expiry":        sign(claims{Role: RolePatient, RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()}}),
		"garbage":          "not.a.jwt",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Verify(raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
