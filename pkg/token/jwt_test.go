package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", "lms")
	tok, err := m.GenerateToken(7, "instructor", []uint{1, 2}, time.Hour)
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "instructor", claims.Role)
	assert.Equal(t, []uint{1, 2}, claims.CourseIDs)
	assert.True(t, claims.CanAccessCourse(2))
	assert.False(t, claims.CanAccessCourse(3))
}

func TestVerify_Rejects(t *testing.T) {
	m := NewJWTManager("secret", "lms")

	expired, err := m.GenerateToken(1, "student", nil, -time.Minute)
	require.NoError(t, err)
	_, err = m.VerifyToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewJWTManager("other", "lms").GenerateToken(1, "student", nil, time.Hour)
	require.NoError(t, err)
	_, err = m.VerifyToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewJWTManager("secret", "someone-else").GenerateToken(1, "student", nil, time.Hour)
	require.NoError(t, err)
	_, err = m.VerifyToken(wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.VerifyToken(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCanAccessCourse_Admin(t *testing.T) {
	c := &Claims{Role: RoleAdmin}
	assert.True(t, c.CanAccessCourse(99))
}
