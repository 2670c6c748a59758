package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"studybuddy_backend/internal/config"
	"studybuddy_backend/internal/grading"
	"studybuddy_backend/internal/model"
	"studybuddy_backend/internal/repository"
	"studybuddy_backend/pkg/database"
	"studybuddy_backend/pkg/lock"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	quizzes   *QuizService
	questions *QuestionService
	attempts  *AttemptService
	dashboard *DashboardService
	auth      *AuthService
	clock     time.Time
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(&config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newFixture(t *testing.T, policy string) *fixture {
	t.Helper()
	db := newTestDB(t)

	quizRepo := repository.NewQuizRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	stats := repository.NewStatsCache(nil, time.Minute)

	cfg := &config.Config{
		JWT:     config.JWTConfig{Secret: "test-secret", ExpireTime: time.Hour},
		Grading: config.GradingConfig{MaxScorePolicy: policy, StartLockTTL: 2 * time.Second},
	}

	f := &fixture{
		db:        db,
		quizzes:   NewQuizService(db, quizRepo, attemptRepo, stats),
		questions: NewQuestionService(db, quizRepo, questionRepo, stats),
		attempts:  NewAttemptService(db, quizRepo, questionRepo, attemptRepo, stats, lock.NewLocalLocker(), cfg.Grading),
		dashboard: NewDashboardService(quizRepo, repository.NewDashboardRepository(db)),
		auth:      NewAuthService(repository.NewUserRepository(db), cfg),
		clock:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.attempts.now = func() time.Time { return f.clock }
	return f
}

// withRedisStats 让三个服务共用一个 miniredis 上的统计缓存
func (f *fixture) withRedisStats(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	stats := repository.NewStatsCache(rdb, time.Hour)
	f.quizzes.Stats = stats
	f.questions.Stats = stats
	f.attempts.Stats = stats
	return mr
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) user(t *testing.T, name string) *model.User {
	t.Helper()
	u := &model.User{Name: name, Email: strings.ToLower(name) + "@example.com", Password: "x", Role: model.Student}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }

func (f *fixture) quiz(t *testing.T, author *model.User, title string, mutate ...func(*QuizReq)) *model.Quiz {
	t.Helper()
	req := QuizReq{Title: strPtr(title), ShuffleQuestions: boolPtr(false), ShuffleOptions: boolPtr(false)}
	for _, m := range mutate {
		m(&req)
	}
	q, err := f.quizzes.CreateQuiz(context.Background(), author.ID, req)
	require.NoError(t, err)
	return q
}

// singleQuestion 三个选项，第一个正确
func (f *fixture) singleQuestion(t *testing.T, author *model.User, quizID uint, points int) *model.Question {
	t.Helper()
	q, err := f.questions.UpsertQuestion(context.Background(), author.ID, quizID, 0, QuestionReq{
		Prompt: "Which one?",
		Type:   string(grading.TypeSingle),
		Points: points,
		Options: []OptionReq{
			{Text: "right", IsCorrect: true},
			{Text: "wrong"},
			{Text: "also wrong"},
		},
	})
	require.NoError(t, err)
	return q
}

func (f *fixture) multipleQuestion(t *testing.T, author *model.User, quizID uint, points int) *model.Question {
	t.Helper()
	q, err := f.questions.UpsertQuestion(context.Background(), author.ID, quizID, 0, QuestionReq{
		Prompt: "Pick all primes",
		Type:   string(grading.TypeMultiple),
		Points: points,
		Options: []OptionReq{
			{Text: "2", IsCorrect: true},
			{Text: "3", IsCorrect: true},
			{Text: "4"},
		},
	})
	require.NoError(t, err)
	return q
}

func (f *fixture) identificationQuestion(t *testing.T, author *model.User, quizID uint, points int, canonical string) *model.Question {
	t.Helper()
	q, err := f.questions.UpsertQuestion(context.Background(), author.ID, quizID, 0, QuestionReq{
		Prompt:          "Capital of France?",
		Type:            string(grading.TypeIdentification),
		Points:          points,
		CanonicalAnswer: canonical,
	})
	require.NoError(t, err)
	return q
}

func (f *fixture) reloadQuiz(t *testing.T, id uint) *model.Quiz {
	t.Helper()
	var q model.Quiz
	require.NoError(t, f.db.First(&q, id).Error)
	return &q
}

func (f *fixture) reloadAttempt(t *testing.T, id uint) *model.Attempt {
	t.Helper()
	var a model.Attempt
	require.NoError(t, f.db.First(&a, id).Error)
	return &a
}

func (f *fixture) answerRows(t *testing.T, attemptID uint) []model.Answer {
	t.Helper()
	var rows []model.Answer
	require.NoError(t, f.db.Where("attempt_id = ?", attemptID).Find(&rows).Error)
	return rows
}

// assertScoreConsistent score 必须等于所有作答得分之和
func (f *fixture) assertScoreConsistent(t *testing.T, attemptID uint) {
	t.Helper()
	sum := 0
	for _, a := range f.answerRows(t, attemptID) {
		sum += a.PointsAwarded
	}
	require.Equal(t, sum, f.reloadAttempt(t, attemptID).Score)
}
