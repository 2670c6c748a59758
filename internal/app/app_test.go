package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"studybuddy_backend/internal/config"
	"studybuddy_backend/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type client struct {
	t      *testing.T
	router http.Handler
	token  string
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server:   config.ServerConfig{Mode: gin.TestMode},
		Database: config.DatabaseConfig{Driver: "sqlite", LogLevel: "silent"},
		JWT:      config.JWTConfig{Secret: "app-test-secret", ExpireTime: time.Hour},
		Grading:  config.GradingConfig{MaxScorePolicy: config.MaxScoreAtFinalize, StartLockTTL: time.Second},
	}
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg.Database.Path = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := database.Open(&cfg.Database)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return New(cfg, db, nil)
}

func (c *client) do(method, path string, body interface{}) (int, envelope) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func (c *client) decode(env envelope, v interface{}) {
	c.t.Helper()
	require.NoError(c.t, json.Unmarshal(env.Data, v))
}

func signUp(t *testing.T, a *App, name string) *client {
	t.Helper()
	c := &client{t: t, router: a.Router}
	email := strings.ToLower(name) + "@example.com"

	code, _ := c.do(http.MethodPost, "/api/register", gin.H{"name": name, "email": email, "password": "password123"})
	require.Equal(t, http.StatusCreated, code)

	code, env := c.do(http.MethodPost, "/api/login", gin.H{"email": email, "password": "password123"})
	require.Equal(t, http.StatusOK, code)
	var login struct {
		Token string `json:"token"`
	}
	c.decode(env, &login)
	c.token = login.Token
	return c
}

type idOnly struct {
	ID uint `json:"id"`
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	c := &client{t: t, router: a.Router}

	code, env := c.do(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"database":"up"`)
}

func TestAuthRequired(t *testing.T) {
	a := newTestApp(t)
	c := &client{t: t, router: a.Router}

	code, _ := c.do(http.MethodPost, "/api/quizzes", gin.H{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = c.do(http.MethodPost, "/api/login", gin.H{"email": "ghost@example.com", "password": "whatever1"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestQuizFlowOverHTTP(t *testing.T) {
	a := newTestApp(t)
	author := signUp(t, a, "Author")
	taker := signUp(t, a, "Taker")

	code, env := author.do(http.MethodPost, "/api/quizzes", gin.H{"title": "Capitals", "shuffleQuestions": false, "shuffleOptions": false})
	require.Equal(t, http.StatusCreated, code)
	var quiz idOnly
	author.decode(env, &quiz)

	code, env = author.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/questions", quiz.ID), gin.H{
		"prompt": "Capital of France?",
		"type":   "single",
		"points": 10,
		"options": []gin.H{
			{"text": "Paris", "isCorrect": true},
			{"text": "Lyon"},
		},
	})
	require.Equal(t, http.StatusCreated, code)
	var question struct {
		ID      uint     `json:"id"`
		Options []idOnly `json:"options"`
	}
	author.decode(env, &question)
	require.Len(t, question.Options, 2)

	// 非作者不能改题
	code, _ = taker.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/questions", quiz.ID), gin.H{
		"prompt": "x", "type": "identification", "points": 1, "canonicalAnswer": "y",
	})
	assert.Equal(t, http.StatusForbidden, code)

	// 学生看到的测验不含正确答案
	code, env = taker.do(http.MethodGet, fmt.Sprintf("/api/quizzes/%d", quiz.ID), nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), `"isCorrect":true`)

	code, env = taker.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/attempts", quiz.ID), nil)
	require.Equal(t, http.StatusCreated, code)
	var attempt idOnly
	taker.decode(env, &attempt)

	code, env = taker.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/attempts", quiz.ID), nil)
	require.Equal(t, http.StatusOK, code)
	var resumed idOnly
	taker.decode(env, &resumed)
	assert.Equal(t, attempt.ID, resumed.ID)

	answerPath := fmt.Sprintf("/api/attempts/%d/answers", attempt.ID)
	code, _ = taker.do(http.MethodPut, answerPath, gin.H{"questionId": question.ID, "optionIds": []uint{question.Options[0].ID, question.Options[1].ID}})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = taker.do(http.MethodPut, answerPath, gin.H{"questionId": question.ID, "optionIds": []uint{question.Options[0].ID}})
	require.Equal(t, http.StatusOK, code)

	code, _ = author.do(http.MethodPut, answerPath, gin.H{"questionId": question.ID, "optionIds": []uint{question.Options[0].ID}})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = taker.do(http.MethodPost, fmt.Sprintf("/api/attempts/%d/finalize", attempt.ID), nil)
	require.Equal(t, http.StatusOK, code)
	var done struct {
		Status     string  `json:"status"`
		Score      int     `json:"score"`
		MaxScore   int     `json:"maxScore"`
		Percentage float64 `json:"percentage"`
	}
	taker.decode(env, &done)
	assert.Equal(t, "completed", done.Status)
	assert.Equal(t, 10, done.Score)
	assert.Equal(t, 10, done.MaxScore)
	assert.Equal(t, 100.0, done.Percentage)

	code, _ = taker.do(http.MethodPost, fmt.Sprintf("/api/attempts/%d/finalize", attempt.ID), nil)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = taker.do(http.MethodPut, answerPath, gin.H{"questionId": question.ID, "optionIds": []uint{question.Options[1].ID}})
	assert.Equal(t, http.StatusConflict, code)

	code, env = author.do(http.MethodGet, fmt.Sprintf("/api/quizzes/%d/attempts", quiz.ID), nil)
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Attempts []idOnly `json:"attempts"`
		IsAuthor bool     `json:"isAuthor"`
	}
	author.decode(env, &list)
	assert.True(t, list.IsAuthor)
	assert.Len(t, list.Attempts, 1)

	code, _ = author.do(http.MethodGet, "/api/dashboard", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestPrivateQuizAndBadIDs(t *testing.T) {
	a := newTestApp(t)
	author := signUp(t, a, "Author")
	other := signUp(t, a, "Other")
	anonymous := &client{t: t, router: a.Router}

	code, env := author.do(http.MethodPost, "/api/quizzes", gin.H{"title": "Hidden", "visibility": "private"})
	require.Equal(t, http.StatusCreated, code)
	var quiz idOnly
	author.decode(env, &quiz)

	code, _ = other.do(http.MethodGet, fmt.Sprintf("/api/quizzes/%d", quiz.ID), nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = anonymous.do(http.MethodGet, fmt.Sprintf("/api/quizzes/%d", quiz.ID), nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = author.do(http.MethodGet, fmt.Sprintf("/api/quizzes/%d", quiz.ID), nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = other.do(http.MethodPost, fmt.Sprintf("/api/quizzes/%d/attempts", quiz.ID), nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = other.do(http.MethodGet, "/api/quizzes/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = other.do(http.MethodGet, "/api/quizzes/9999", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = anonymous.do(http.MethodGet, "/api/quizzes", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"total":0`)
}

func TestAdminRouteRequiresRole(t *testing.T) {
	a := newTestApp(t)
	user := signUp(t, a, "Student")

	code, _ := user.do(http.MethodPost, "/api/admin/quiz-totals/recompute", nil)
	assert.Equal(t, http.StatusForbidden, code)
}
