package util

import (
	"testing"
	"time"

	"studybuddy_backend/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	user := &model.User{Email: "ana@example.com", Role: model.Student}
	user.ID = 7

	token, err := GenerateJWT(user, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, tokenIssuer, claims.Issuer)

	_, err = ParseJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	user := &model.User{Email: "ana@example.com"}
	token, err := GenerateJWT(user, "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseJWT(token, "secret")
	assert.Error(t, err)
}

func TestJWTRejectsForeignTokens(t *testing.T) {
	sign := func(claims jwt.Claims, method jwt.SigningMethod) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		return token
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	// 其他签发方
	foreign := sign(&Claims{UserID: 7, RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", ExpiresAt: exp}}, jwt.SigningMethodHS256)
	_, err := ParseJWT(foreign, "secret")
	assert.Error(t, err)

	// 缺少过期时间
	noExp := sign(&Claims{UserID: 7, RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer}}, jwt.SigningMethodHS256)
	_, err = ParseJWT(noExp, "secret")
	assert.Error(t, err)

	// 非 HS256
	hs512 := sign(&Claims{UserID: 7, RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, ExpiresAt: exp}}, jwt.SigningMethodHS512)
	_, err = ParseJWT(hs512, "secret")
	assert.Error(t, err)

	// 没有用户
	anonymous := sign(&Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer, ExpiresAt: exp}}, jwt.SigningMethodHS256)
	_, err = ParseJWT(anonymous, "secret")
	assert.Error(t, err)
}

func TestClaimsIsAdmin(t *testing.T) {
	assert.True(t, (&Claims{Role: model.Admin}).IsAdmin())
	assert.False(t, (&Claims{Role: model.Teacher}).IsAdmin())

	var none *Claims
	assert.False(t, none.IsAdmin())
}
