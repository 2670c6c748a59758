package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"studybuddy_backend/internal/grading"
	"studybuddy_backend/internal/model"
	"studybuddy_backend/internal/repository"
	"studybuddy_backend/internal/util"
	"studybuddy_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OptionView struct {
	ID          uint   `json:"id"`
	Text        string `json:"text"`
	Position    int    `json:"position"`
	IsCorrect   *bool  `json:"isCorrect,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

type AnswerView struct {
	SelectedOptionIDs []uint `json:"selectedOptionIds"`
	AnswerText        string `json:"answerText,omitempty"`
	IsCorrect         *bool  `json:"isCorrect,omitempty"`
	PointsAwarded     *int   `json:"pointsAwarded,omitempty"`
}

type QuestionView struct {
	ID              uint         `json:"id"`
	Prompt          string       `json:"prompt"`
	Type            grading.Type `json:"type"`
	Points          int          `json:"points"`
	Position        int          `json:"position"`
	Explanation     string       `json:"explanation,omitempty"`
	CanonicalAnswer string       `json:"canonicalAnswer,omitempty"`
	Options         []OptionView `json:"options"`
	Answer          *AnswerView  `json:"answer"`
}

type QuizSummary struct {
	ID               uint   `json:"id"`
	Title            string `json:"title"`
	Slug             string `json:"slug"`
	TotalPoints      int    `json:"totalPoints"`
	TimeLimitSeconds *int   `json:"timeLimitSeconds"`
}

// AttemptView 进行中时隐藏正确答案、解析与得分
type AttemptView struct {
	Attempt          *model.Attempt `json:"attempt"`
	Quiz             QuizSummary    `json:"quiz"`
	Questions        []QuestionView `json:"questions"`
	Unanswered       []uint         `json:"unanswered"`
	Deadline         *time.Time     `json:"deadline,omitempty"`
	RemainingSeconds *int           `json:"remainingSeconds,omitempty"`
}

// deadline 仅用于展示，过期不会自动交卷
func deadline(attempt *model.Attempt, quiz *model.Quiz, now time.Time) (*time.Time, *int) {
	if quiz.TimeLimitSeconds == nil || *quiz.TimeLimitSeconds <= 0 {
		return nil, nil
	}
	d := attempt.StartedAt.Add(time.Duration(*quiz.TimeLimitSeconds) * time.Second)
	if !attempt.InProgress() {
		return &d, nil
	}
	remaining := int(math.Max(0, math.Ceil(d.Sub(now).Seconds())))
	return &d, &remaining
}

// shuffled 以答题 ID 为种子，同一次答题顺序固定
func shuffled[T any](items []T, seed int64) []T {
	out := append([]T(nil), items...)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// GetAttempt 答题者本人或测验作者可查看
func (s *AttemptService) GetAttempt(ctx context.Context, viewerID, attemptID uint) (*AttemptView, error) {
	db := s.DB.WithContext(ctx)
	attempt, err := s.AttemptRepo.WithTx(db).FindByID(attemptID)
	if err != nil {
		return nil, notFound(err, util.ErrAttemptNotFound)
	}
	quiz, err := s.QuizRepo.WithTx(db).FindWithQuestions(attempt.QuizID)
	if err != nil {
		return nil, notFound(err, util.ErrQuizNotFound)
	}
	if attempt.UserID != viewerID && !quiz.OwnedBy(viewerID) {
		return nil, fmt.Errorf("%w: you cannot view this attempt", util.ErrForbidden)
	}

	answers, err := s.AttemptRepo.WithTx(db).ListAnswers(attemptID)
	if err != nil {
		return nil, err
	}
	byQuestion := make(map[uint]*model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	reveal := !attempt.InProgress()
	questions := quiz.Questions
	if quiz.ShuffleQuestions {
		questions = shuffled(questions, int64(attempt.ID))
	}

	view := &AttemptView{
		Attempt: attempt,
		Quiz: QuizSummary{
			ID:               quiz.ID,
			Title:            quiz.Title,
			Slug:             quiz.Slug,
			TotalPoints:      quiz.TotalPoints,
			TimeLimitSeconds: quiz.TimeLimitSeconds,
		},
		Questions:  make([]QuestionView, 0, len(questions)),
		Unanswered: []uint{},
	}
	view.Deadline, view.RemainingSeconds = deadline(attempt, quiz, s.now())

	for _, q := range questions {
		qv := QuestionView{
			ID:       q.ID,
			Prompt:   q.Prompt,
			Type:     q.Type,
			Points:   q.Points,
			Position: q.Position,
		}
		if reveal {
			qv.Explanation = q.Explanation
			qv.CanonicalAnswer = q.CanonicalAnswer
		}

		opts := q.Options
		if quiz.ShuffleOptions {
			opts = shuffled(opts, int64(attempt.ID)<<20^int64(q.ID))
		}
		qv.Options = make([]OptionView, 0, len(opts))
		for _, o := range opts {
			ov := OptionView{ID: o.ID, Text: o.Text, Position: o.Position}
			if reveal {
				correct := o.IsCorrect
				ov.IsCorrect = &correct
				ov.Explanation = o.Explanation
			}
			qv.Options = append(qv.Options, ov)
		}

		if a, ok := byQuestion[q.ID]; ok {
			av := &AnswerView{SelectedOptionIDs: a.SelectedOptionIDs, AnswerText: a.AnswerText}
			if reveal {
				correct, points := a.IsCorrect, a.PointsAwarded
				av.IsCorrect = &correct
				av.PointsAwarded = &points
			}
			qv.Answer = av
		} else {
			view.Unanswered = append(view.Unanswered, q.ID)
		}
		view.Questions = append(view.Questions, qv)
	}

	if !reveal {
		// 进行中不暴露当前得分
		hidden := *attempt
		hidden.Score = 0
		view.Attempt = &hidden
	}
	return view, nil
}

type AttemptList struct {
	Attempts []*model.Attempt         `json:"attempts"`
	Stats    *repository.AttemptStats `json:"stats"`
	IsAuthor bool                     `json:"isAuthor"`
}

// ListAttempts 作者看到全部答题，其他人只看到自己的
func (s *AttemptService) ListAttempts(ctx context.Context, viewerID, quizID uint) (*AttemptList, error) {
	db := s.DB.WithContext(ctx)
	quiz, err := s.QuizRepo.WithTx(db).FindByID(quizID)
	if err != nil {
		return nil, notFound(err, util.ErrQuizNotFound)
	}
	isAuthor := quiz.OwnedBy(viewerID)
	if quiz.IsPrivate() && !isAuthor {
		return nil, fmt.Errorf("%w: this quiz is private", util.ErrForbidden)
	}

	filter := viewerID
	if isAuthor {
		filter = 0
	}

	attempts, err := s.AttemptRepo.WithTx(db).ListByQuiz(quizID, filter)
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		if a.User != nil {
			a.User.Email = ""
		}
	}

	stats, err := s.quizStats(db, quiz, filter)
	if err != nil {
		return nil, err
	}
	return &AttemptList{Attempts: attempts, Stats: stats, IsAuthor: isAuthor}, nil
}

func (s *AttemptService) quizStats(db *gorm.DB, quiz *model.Quiz, userFilter uint) (*repository.AttemptStats, error) {
	if cached, ok := s.Stats.Get(quiz.ID, userFilter); ok {
		return cached, nil
	}

	row, err := s.AttemptRepo.WithTx(db).Stats(quiz.ID, userFilter)
	if err != nil {
		return nil, err
	}
	stats := buildStats(row, quiz.TotalPoints)

	if err := s.Stats.Set(quiz.ID, userFilter, stats); err != nil {
		logger.Log.Warn("failed to cache quiz stats", zap.Uint("quizID", quiz.ID), zap.Error(err))
	}
	return stats, nil
}

// buildStats 百分比相对测验当前总分，取整
func buildStats(row *repository.AttemptStatsRow, totalPoints int) *repository.AttemptStats {
	stats := &repository.AttemptStats{
		TotalAttempts:     row.Total,
		CompletedAttempts: row.Completed,
		BestScore:         row.BestScore,
		AverageScore:      row.AverageScore,
	}
	if totalPoints <= 0 {
		return stats
	}
	if row.BestScore != nil {
		p := math.Round(float64(*row.BestScore) / float64(totalPoints) * 100)
		stats.BestPercentage = &p
	}
	if row.AverageScore != nil {
		avg := util.Round1(*row.AverageScore)
		stats.AverageScore = &avg
		p := math.Round(*row.AverageScore / float64(totalPoints) * 100)
		stats.AveragePercentage = &p
	}
	return stats
}
