package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studybuddy_backend/internal/model"
	"studybuddy_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func token(t *testing.T, role model.UserRole) string {
	t.Helper()
	u := &model.User{Email: "t@example.com", Role: role}
	u.ID = 7
	tok, err := util.GenerateJWT(u, secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": util.CurrentUserID(c)})
	})
	r.GET("/", handlers...)
	return r
}

func do(r http.Handler, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(secret))

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer garbage").Code)

	w := do(r, "Bearer "+token(t, model.Student))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":7}`, w.Body.String())
}

func TestOptionalAuthMiddleware(t *testing.T) {
	r := newRouter(OptionalAuthMiddleware(secret))

	w := do(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":0}`, w.Body.String())

	w = do(r, "Bearer garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":0}`, w.Body.String())

	w = do(r, "Bearer "+token(t, model.Student))
	assert.JSONEq(t, `{"userId":7}`, w.Body.String())
}

func TestRoleMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(secret), RoleMiddleware(model.Teacher))

	assert.Equal(t, http.StatusForbidden, do(r, "Bearer "+token(t, model.Student)).Code)
	assert.Equal(t, http.StatusOK, do(r, "Bearer "+token(t, model.Teacher)).Code)
	assert.Equal(t, http.StatusOK, do(r, "Bearer "+token(t, model.Admin)).Code)
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	r := newRouter(RequestLogger())

	w := do(r, "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "fixed-id", w.Header().Get(RequestIDHeader))
}
