package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"studybuddy_backend/internal/config"
	"studybuddy_backend/internal/grading"
	"studybuddy_backend/internal/model"
	"studybuddy_backend/internal/repository"
	"studybuddy_backend/internal/util"
	"studybuddy_backend/pkg/lock"
	"studybuddy_backend/pkg/logger"
	"studybuddy_backend/pkg/monitoring"
	"studybuddy_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AttemptService 答题生命周期：开始/继续、逐题作答、清除、交卷、放弃。
// 所有操作显式接收当前用户 ID。
type AttemptService struct {
	DB           *gorm.DB
	QuizRepo     *repository.QuizRepository
	QuestionRepo *repository.QuestionRepository
	AttemptRepo  *repository.AttemptRepository
	Stats        *repository.StatsCache
	Locker       lock.Locker
	Cfg          config.GradingConfig

	now func() time.Time
}

func NewAttemptService(
	db *gorm.DB,
	quizRepo *repository.QuizRepository,
	questionRepo *repository.QuestionRepository,
	attemptRepo *repository.AttemptRepository,
	stats *repository.StatsCache,
	locker lock.Locker,
	cfg config.GradingConfig,
) *AttemptService {
	if cfg.MaxScorePolicy == "" {
		cfg.MaxScorePolicy = config.MaxScoreAtFinalize
	}
	if cfg.StartLockTTL <= 0 {
		cfg.StartLockTTL = 5 * time.Second
	}
	return &AttemptService{
		DB:           db,
		QuizRepo:     quizRepo,
		QuestionRepo: questionRepo,
		AttemptRepo:  attemptRepo,
		Stats:        stats,
		Locker:       locker,
		Cfg:          cfg,
		now:          time.Now,
	}
}

// AnswerInput 一道题的作答：选项题用 OptionIDs，填空题用 Text
type AnswerInput struct {
	QuestionID uint   `json:"questionId"`
	OptionIDs  []uint `json:"optionIds"`
	Text       string `json:"answerText"`
}

func (in AnswerInput) selection() grading.Selection {
	return grading.Selection{OptionIDs: in.OptionIDs, Text: in.Text}
}

func startLockKey(quizID, userID uint) string {
	return fmt.Sprintf("attempt:start:%d:%d", quizID, userID)
}

// StartOrResume 已有进行中的答题直接返回；否则校验次数上限后新建。
// 同一 (quiz, user) 通过分布式锁串行化，active_key 唯一索引兜底。
func (s *AttemptService) StartOrResume(ctx context.Context, userID, quizID uint) (attempt *model.Attempt, created bool, err error) {
	ctx, span := tracing.Start(ctx, "AttemptService.StartOrResume",
		attribute.Int64("quiz.id", int64(quizID)),
		attribute.Int64("user.id", int64(userID)),
	)
	defer func() { tracing.End(span, err) }()

	quiz, err := s.QuizRepo.WithTx(s.DB.WithContext(ctx)).FindByID(quizID)
	if err != nil {
		return nil, false, notFound(err, util.ErrQuizNotFound)
	}
	if quiz.IsPrivate() && !quiz.OwnedBy(userID) {
		return nil, false, fmt.Errorf("%w: this quiz is private", util.ErrForbidden)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.Cfg.StartLockTTL)
	defer cancel()
	release, err := s.Locker.Acquire(lockCtx, startLockKey(quizID, userID))
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, false, util.ErrBusy
	}
	if err != nil {
		return nil, false, err
	}
	defer release()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempts := s.AttemptRepo.WithTx(tx)

		existing, err := attempts.FindInProgress(quizID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			attempt = existing
			return nil
		}

		if limit := quiz.AttemptLimit(); limit > 0 {
			done, err := attempts.CountCompleted(quizID, userID)
			if err != nil {
				return err
			}
			if done >= int64(limit) {
				return fmt.Errorf("%w: you have used all %d attempts for this quiz", util.ErrAttemptLimitExceeded, limit)
			}
		}

		maxScore, err := s.QuizRepo.WithTx(tx).SumPoints(quizID)
		if err != nil {
			return err
		}

		key := model.ActiveKeyFor(quizID, userID)
		attempt = &model.Attempt{
			QuizID:    quizID,
			UserID:    userID,
			Status:    model.AttemptInProgress,
			ActiveKey: &key,
			StartedAt: s.now(),
			MaxScore:  maxScore,
		}
		if err := attempts.Create(attempt); err != nil {
			return err
		}
		created = true
		return nil
	})

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// 另一个实例抢先创建了进行中的答题
		existing, findErr := s.AttemptRepo.WithTx(s.DB.WithContext(ctx)).FindInProgress(quizID, userID)
		if findErr != nil {
			return nil, false, findErr
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}

	if created {
		// 新的进行中答题计入 totalAttempts
		invalidateStats(s.Stats, quizID)
		monitoring.AttemptsStarted.Inc()
		logger.Log.Info("attempt started",
			zap.Uint("attemptID", attempt.ID),
			zap.Uint("quizID", quizID),
			zap.Uint("userID", userID),
			zap.Int("maxScore", attempt.MaxScore),
		)
	}
	return attempt, created, nil
}

// lockOwnInProgress 锁住答题行并校验归属；finalizedErr 为状态不是 in_progress 时返回的错误
func (s *AttemptService) lockOwnInProgress(tx *gorm.DB, userID, attemptID uint, finalizedErr error) (*model.Attempt, error) {
	attempt, err := s.AttemptRepo.WithTx(tx).LockByID(attemptID)
	if err != nil {
		return nil, notFound(err, util.ErrAttemptNotFound)
	}
	if attempt.UserID != userID {
		return nil, fmt.Errorf("%w: this attempt does not belong to you", util.ErrForbidden)
	}
	if !attempt.InProgress() {
		return nil, finalizedErr
	}
	return attempt, nil
}

// questionFor 题目必须属于答题所在测验
func (s *AttemptService) questionFor(tx *gorm.DB, attempt *model.Attempt, questionID uint) (*model.Question, error) {
	question, err := s.QuestionRepo.WithTx(tx).FindByID(questionID)
	if err != nil {
		return nil, notFound(err, util.ErrQuestionNotFound)
	}
	if question.QuizID != attempt.QuizID {
		return nil, util.ErrQuestionMismatch
	}
	return question, nil
}

// recordLocked 调用方已持有答题行锁
func (s *AttemptService) recordLocked(tx *gorm.DB, attempt *model.Attempt, in AnswerInput) (*model.Answer, *model.Question, error) {
	question, err := s.questionFor(tx, attempt, in.QuestionID)
	if err != nil {
		return nil, nil, err
	}

	gq := question.GradingView()
	sel := grading.Normalize(in.selection())
	if err := grading.Validate(gq, sel); err != nil {
		return nil, nil, err
	}
	result := grading.Grade(gq, sel)

	answer := &model.Answer{
		AttemptID:     attempt.ID,
		QuestionID:    question.ID,
		IsCorrect:     result.IsCorrect,
		PointsAwarded: result.PointsAwarded,
	}
	var optionIDs []uint
	if question.Type.OptionBased() {
		optionIDs = sel.OptionIDs
	} else {
		answer.AnswerText = sel.Text
	}

	if err := s.AttemptRepo.WithTx(tx).UpsertAnswer(answer, optionIDs); err != nil {
		return nil, nil, err
	}
	return answer, question, nil
}

func (s *AttemptService) refreshScore(tx *gorm.DB, attempt *model.Attempt) error {
	repo := s.AttemptRepo.WithTx(tx)
	score, err := repo.SumAwarded(attempt.ID)
	if err != nil {
		return err
	}
	attempt.Score = score
	return repo.UpdateScore(attempt.ID, score)
}

// RecordAnswer 评分并覆盖该题的唯一作答，随后按作答重算得分；全部在同一事务内
func (s *AttemptService) RecordAnswer(ctx context.Context, userID, attemptID uint, in AnswerInput) (answer *model.Answer, attempt *model.Attempt, err error) {
	ctx, span := tracing.Start(ctx, "AttemptService.RecordAnswer",
		attribute.Int64("attempt.id", int64(attemptID)),
		attribute.Int64("question.id", int64(in.QuestionID)),
	)
	defer func() { tracing.End(span, err) }()

	var question *model.Question
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		attempt, err = s.lockOwnInProgress(tx, userID, attemptID, util.ErrAttemptFinalized)
		if err != nil {
			return err
		}
		answer, question, err = s.recordLocked(tx, attempt, in)
		if err != nil {
			return err
		}
		return s.refreshScore(tx, attempt)
	})
	if err != nil {
		return nil, nil, err
	}

	monitoring.ObserveAnswer(string(question.Type), answer.IsCorrect)
	logger.Log.Debug("answer recorded",
		zap.Uint("attemptID", attemptID),
		zap.Uint("questionID", question.ID),
		zap.Bool("correct", answer.IsCorrect),
		zap.Int("score", attempt.Score),
	)
	return answer, attempt, nil
}

func (s *AttemptService) ClearAnswer(ctx context.Context, userID, attemptID, questionID uint) (attempt *model.Attempt, err error) {
	ctx, span := tracing.Start(ctx, "AttemptService.ClearAnswer",
		attribute.Int64("attempt.id", int64(attemptID)),
		attribute.Int64("question.id", int64(questionID)),
	)
	defer func() { tracing.End(span, err) }()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		attempt, err = s.lockOwnInProgress(tx, userID, attemptID, util.ErrAttemptFinalized)
		if err != nil {
			return err
		}
		if _, err := s.questionFor(tx, attempt, questionID); err != nil {
			return err
		}
		if _, err := s.AttemptRepo.WithTx(tx).DeleteAnswer(attemptID, questionID); err != nil {
			return err
		}
		return s.refreshScore(tx, attempt)
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

// finalizeLocked 得分取作答之和；满分按配置在交卷时重算或沿用开始时的快照
func (s *AttemptService) finalizeLocked(tx *gorm.DB, attempt *model.Attempt) error {
	repo := s.AttemptRepo.WithTx(tx)
	score, err := repo.SumAwarded(attempt.ID)
	if err != nil {
		return err
	}

	if s.Cfg.MaxScorePolicy != config.MaxScoreSnapshot {
		maxScore, err := s.QuizRepo.WithTx(tx).SumPoints(attempt.QuizID)
		if err != nil {
			return err
		}
		attempt.MaxScore = maxScore
	}

	now := s.now()
	attempt.Score = score
	attempt.Status = model.AttemptCompleted
	attempt.CompletedAt = &now
	attempt.ActiveKey = nil
	attempt.TimeTakenSeconds = elapsedSeconds(attempt.StartedAt, now)
	attempt.Percentage = util.Percentage(score, attempt.MaxScore)
	return repo.Update(attempt)
}

func elapsedSeconds(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int(math.Floor(d.Seconds()))
}

func (s *AttemptService) Finalize(ctx context.Context, userID, attemptID uint) (attempt *model.Attempt, err error) {
	ctx, span := tracing.Start(ctx, "AttemptService.Finalize", attribute.Int64("attempt.id", int64(attemptID)))
	defer func() { tracing.End(span, err) }()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		attempt, err = s.lockOwnInProgress(tx, userID, attemptID, util.ErrAlreadyFinalized)
		if err != nil {
			return err
		}
		return s.finalizeLocked(tx, attempt)
	})
	if err != nil {
		return nil, err
	}
	s.afterFinish(attempt)
	return attempt, nil
}

// Submit 一次性提交整份答卷并交卷；任一作答校验失败则全部回滚。空作答跳过。
func (s *AttemptService) Submit(ctx context.Context, userID, attemptID uint, answers []AnswerInput) (attempt *model.Attempt, err error) {
	ctx, span := tracing.Start(ctx, "AttemptService.Submit",
		attribute.Int64("attempt.id", int64(attemptID)),
		attribute.Int("answers", len(answers)),
	)
	defer func() { tracing.End(span, err) }()

	type graded struct {
		qType   grading.Type
		correct bool
	}
	var results []graded

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		attempt, err = s.lockOwnInProgress(tx, userID, attemptID, util.ErrAlreadyFinalized)
		if err != nil {
			return err
		}
		for _, in := range answers {
			if in.selection().Empty() {
				continue
			}
			answer, question, err := s.recordLocked(tx, attempt, in)
			if err != nil {
				return fmt.Errorf("question %d: %w", in.QuestionID, err)
			}
			results = append(results, graded{qType: question.Type, correct: answer.IsCorrect})
		}
		return s.finalizeLocked(tx, attempt)
	})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		monitoring.ObserveAnswer(string(r.qType), r.correct)
	}
	s.afterFinish(attempt)
	return attempt, nil
}

func (s *AttemptService) Abandon(ctx context.Context, userID, attemptID uint) (attempt *model.Attempt, err error) {
	ctx, span := tracing.Start(ctx, "AttemptService.Abandon", attribute.Int64("attempt.id", int64(attemptID)))
	defer func() { tracing.End(span, err) }()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		attempt, err = s.lockOwnInProgress(tx, userID, attemptID, util.ErrNotInProgress)
		if err != nil {
			return err
		}
		now := s.now()
		attempt.Status = model.AttemptAbandoned
		attempt.CompletedAt = &now
		attempt.ActiveKey = nil
		return s.AttemptRepo.WithTx(tx).Update(attempt)
	})
	if err != nil {
		return nil, err
	}
	s.afterFinish(attempt)
	return attempt, nil
}

func (s *AttemptService) afterFinish(attempt *model.Attempt) {
	invalidateStats(s.Stats, attempt.QuizID)
	monitoring.ObserveFinished(string(attempt.Status), attempt.Percentage, attempt.Status == model.AttemptCompleted)
	logger.Log.Info("attempt finished",
		zap.Uint("attemptID", attempt.ID),
		zap.String("status", string(attempt.Status)),
		zap.Int("score", attempt.Score),
		zap.Int("maxScore", attempt.MaxScore),
		zap.Float64("percentage", attempt.Percentage),
	)
}

// DeleteAttempt 仅测验作者可以重置（删除）某次答题
func (s *AttemptService) DeleteAttempt(ctx context.Context, userID, attemptID uint) (err error) {
	ctx, span := tracing.Start(ctx, "AttemptService.DeleteAttempt", attribute.Int64("attempt.id", int64(attemptID)))
	defer func() { tracing.End(span, err) }()

	var quizID uint
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.AttemptRepo.WithTx(tx)
		attempt, err := repo.LockByID(attemptID)
		if err != nil {
			return notFound(err, util.ErrAttemptNotFound)
		}
		if _, err := ownedQuiz(s.QuizRepo.WithTx(tx), attempt.QuizID, userID); err != nil {
			return err
		}
		quizID = attempt.QuizID
		return repo.Delete(attemptID)
	})
	if err != nil {
		return err
	}
	invalidateStats(s.Stats, quizID)
	logger.Log.Info("attempt deleted", zap.Uint("attemptID", attemptID), zap.Uint("by", userID))
	return nil
}
