package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studybuddy_backend/internal/model"
	"studybuddy_backend/internal/repository"
	"studybuddy_backend/internal/util"
	"studybuddy_backend/pkg/logger"
	"studybuddy_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type QuizService struct {
	DB          *gorm.DB
	QuizRepo    *repository.QuizRepository
	AttemptRepo *repository.AttemptRepository
	Stats       *repository.StatsCache
}

func NewQuizService(
	db *gorm.DB,
	quizRepo *repository.QuizRepository,
	attemptRepo *repository.AttemptRepository,
	stats *repository.StatsCache,
) *QuizService {
	return &QuizService{
		DB:          db,
		QuizRepo:    quizRepo,
		AttemptRepo: attemptRepo,
		Stats:       stats,
	}
}

// QuizReq 创建时 Title 必填；更新时 nil 字段保持不变
type QuizReq struct {
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	Visibility       *string `json:"visibility"`
	TimeLimitSeconds *int    `json:"timeLimitSeconds"`
	MaxAttempts      *int    `json:"maxAttempts"`
	ShuffleQuestions *bool   `json:"shuffleQuestions"`
	ShuffleOptions   *bool   `json:"shuffleOptions"`
}

func (req *QuizReq) apply(quiz *model.Quiz) error {
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return validationf("title is required")
		}
		if len(title) > 255 {
			return validationf("title may not be longer than 255 characters")
		}
		quiz.Title = title
	}
	if req.Description != nil {
		quiz.Description = strings.TrimSpace(*req.Description)
	}
	if req.Visibility != nil {
		v := model.Visibility(*req.Visibility)
		if !v.Valid() {
			return validationf("visibility must be one of public, unlisted, private")
		}
		quiz.Visibility = v
	}
	if req.TimeLimitSeconds != nil {
		quiz.TimeLimitSeconds = positiveOrNil(req.TimeLimitSeconds)
	}
	if req.MaxAttempts != nil {
		quiz.MaxAttempts = positiveOrNil(req.MaxAttempts)
	}
	if req.ShuffleQuestions != nil {
		quiz.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleOptions != nil {
		quiz.ShuffleOptions = *req.ShuffleOptions
	}
	return nil
}

// uniqueSlug 与已有 slug 冲突时依次追加 -1, -2 ...
func (s *QuizService) uniqueSlug(repo *repository.QuizRepository, title string) (string, error) {
	base := slugify(title)
	slug := base
	for i := 1; ; i++ {
		exists, err := repo.SlugExists(slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}

func (s *QuizService) CreateQuiz(ctx context.Context, userID uint, req QuizReq) (quiz *model.Quiz, err error) {
	ctx, span := tracing.Start(ctx, "QuizService.CreateQuiz", attribute.Int64("user.id", int64(userID)))
	defer func() { tracing.End(span, err) }()

	if req.Title == nil {
		return nil, validationf("title is required")
	}

	quiz = &model.Quiz{
		UserID:           userID,
		Visibility:       model.VisibilityPublic,
		ShuffleQuestions: true,
		ShuffleOptions:   true,
	}
	if err := req.apply(quiz); err != nil {
		return nil, err
	}

	// slug 唯一索引兜底：并发创建同名测验时重试
	for retry := 0; retry < 3; retry++ {
		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := s.QuizRepo.WithTx(tx)
			slug, err := s.uniqueSlug(repo, quiz.Title)
			if err != nil {
				return err
			}
			quiz.Slug = slug
			return repo.Create(quiz)
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		quiz.ID = 0
	}
	if err != nil {
		return nil, err
	}

	logger.Log.Info("quiz created",
		zap.Uint("quizID", quiz.ID),
		zap.Uint("userID", userID),
		zap.String("slug", quiz.Slug),
	)
	return quiz, nil
}

// OwnedQuiz 非作者返回 ErrForbidden
func (s *QuizService) OwnedQuiz(quizID, userID uint) (*model.Quiz, error) {
	return ownedQuiz(s.QuizRepo, quizID, userID)
}

func ownedQuiz(repo *repository.QuizRepository, quizID, userID uint) (*model.Quiz, error) {
	quiz, err := repo.FindByID(quizID)
	if err != nil {
		return nil, notFound(err, util.ErrQuizNotFound)
	}
	if !quiz.OwnedBy(userID) {
		return nil, fmt.Errorf("%w: only the quiz author can modify this quiz", util.ErrForbidden)
	}
	return quiz, nil
}

func (s *QuizService) UpdateQuiz(ctx context.Context, userID, quizID uint, req QuizReq) (quiz *model.Quiz, err error) {
	ctx, span := tracing.Start(ctx, "QuizService.UpdateQuiz", attribute.Int64("quiz.id", int64(quizID)))
	defer func() { tracing.End(span, err) }()

	repo := s.QuizRepo.WithTx(s.DB.WithContext(ctx))
	quiz, err = ownedQuiz(repo, quizID, userID)
	if err != nil {
		return nil, err
	}
	if err := req.apply(quiz); err != nil {
		return nil, err
	}
	if err := repo.Update(quiz); err != nil {
		return nil, err
	}
	// 次数或可见性变化会影响统计口径
	invalidateStats(s.Stats, quizID)
	return quiz, nil
}

func (s *QuizService) DeleteQuiz(ctx context.Context, userID, quizID uint) (err error) {
	ctx, span := tracing.Start(ctx, "QuizService.DeleteQuiz", attribute.Int64("quiz.id", int64(quizID)))
	defer func() { tracing.End(span, err) }()

	repo := s.QuizRepo.WithTx(s.DB.WithContext(ctx))
	if _, err := ownedQuiz(repo, quizID, userID); err != nil {
		return err
	}
	if err := repo.Delete(quizID); err != nil {
		return err
	}
	invalidateStats(s.Stats, quizID)
	logger.Log.Info("quiz deleted", zap.Uint("quizID", quizID), zap.Uint("userID", userID))
	return nil
}

// GetQuiz 私有测验仅作者可见；非作者看不到正确答案
func (s *QuizService) GetQuiz(ctx context.Context, viewerID, quizID uint) (*model.Quiz, error) {
	quiz, err := s.QuizRepo.WithTx(s.DB.WithContext(ctx)).FindWithQuestions(quizID)
	if err != nil {
		return nil, notFound(err, util.ErrQuizNotFound)
	}
	if quiz.OwnedBy(viewerID) {
		return quiz, nil
	}
	if quiz.IsPrivate() {
		return nil, fmt.Errorf("%w: this quiz is private", util.ErrForbidden)
	}
	stripAnswers(quiz)
	return quiz, nil
}

func stripAnswers(quiz *model.Quiz) {
	for _, q := range quiz.Questions {
		q.CanonicalAnswer = ""
		for _, o := range q.Options {
			o.IsCorrect = false
			o.Explanation = ""
		}
	}
}

func (s *QuizService) ListPublic(ctx context.Context, page, limit int) (*util.PageResponse, error) {
	page, limit, offset := util.Pagination(page, limit)
	quizzes, total, err := s.QuizRepo.WithTx(s.DB.WithContext(ctx)).ListPublic(page, limit, offset)
	if err != nil {
		return nil, err
	}
	return &util.PageResponse{
		List:  quizzes,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

type MyQuizItem struct {
	repository.QuizListRow
	LatestAttempt *model.Attempt `json:"latestAttempt"`
}

// ListMine 作者自己的测验，附题目数与本人最近一次答题
func (s *QuizService) ListMine(ctx context.Context, userID uint) ([]MyQuizItem, error) {
	db := s.DB.WithContext(ctx)
	rows, err := s.QuizRepo.WithTx(db).ListByAuthor(userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	latest, err := s.AttemptRepo.WithTx(db).LatestByUser(userID, ids)
	if err != nil {
		return nil, err
	}

	items := make([]MyQuizItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, MyQuizItem{QuizListRow: r, LatestAttempt: latest[r.ID]})
	}
	return items, nil
}

// RecomputeTotals 修复所有测验缓存的总分，返回修正的测验数
func (s *QuizService) RecomputeTotals(ctx context.Context) (int64, error) {
	fixed, err := s.QuizRepo.WithTx(s.DB.WithContext(ctx)).RecomputeAllTotals()
	if err != nil {
		return 0, err
	}
	if fixed > 0 {
		logger.Log.Warn("quiz totals were out of sync", zap.Int64("fixed", fixed))
		// 百分比以总分为分母
		if err := s.Stats.InvalidateAll(); err != nil {
			logger.Log.Warn("failed to invalidate quiz stats", zap.Error(err))
		}
	}
	return fixed, nil
}
