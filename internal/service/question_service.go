package service

import (
	"context"
	"fmt"
	"strings"

	"studybuddy_backend/internal/grading"
	"studybuddy_backend/internal/model"
	"studybuddy_backend/internal/repository"
	"studybuddy_backend/internal/util"
	"studybuddy_backend/pkg/logger"
	"studybuddy_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	minPoints     = 1
	maxPoints     = 100
	maxPromptLen  = 1000
	maxOptionText = 1000
)

type QuestionService struct {
	DB           *gorm.DB
	QuizRepo     *repository.QuizRepository
	QuestionRepo *repository.QuestionRepository
	Stats        *repository.StatsCache
}

func NewQuestionService(
	db *gorm.DB,
	quizRepo *repository.QuizRepository,
	questionRepo *repository.QuestionRepository,
	stats *repository.StatsCache,
) *QuestionService {
	return &QuestionService{
		DB:           db,
		QuizRepo:     quizRepo,
		QuestionRepo: questionRepo,
		Stats:        stats,
	}
}

// OptionReq ID 为空表示新建
type OptionReq struct {
	ID          *uint  `json:"id"`
	Text        string `json:"text"`
	IsCorrect   bool   `json:"isCorrect"`
	Explanation string `json:"explanation"`
}

type QuestionReq struct {
	Prompt          string      `json:"prompt"`
	Type            string      `json:"type"`
	Points          int         `json:"points"`
	Position        *int        `json:"position"`
	Explanation     string      `json:"explanation"`
	CanonicalAnswer string      `json:"canonicalAnswer"`
	Options         []OptionReq `json:"options"`
}

// normalize 校验题目整体结构，返回填空题的标准答案
func (req *QuestionReq) normalize() (grading.Type, string, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return "", "", validationf("prompt is required")
	}
	if len(req.Prompt) > maxPromptLen {
		return "", "", validationf("prompt may not be longer than %d characters", maxPromptLen)
	}
	t := grading.Type(req.Type)
	if !t.Valid() {
		return "", "", validationf("type must be one of single, multiple, true_false, identification")
	}
	if req.Points < minPoints || req.Points > maxPoints {
		return "", "", validationf("points must be between %d and %d", minPoints, maxPoints)
	}

	if t == grading.TypeIdentification {
		canonical := strings.TrimSpace(req.CanonicalAnswer)
		if canonical == "" {
			// 兼容以“正确选项”的形式提交标准答案
			for _, o := range req.Options {
				if o.IsCorrect && strings.TrimSpace(o.Text) != "" {
					canonical = strings.TrimSpace(o.Text)
					break
				}
			}
		}
		if canonical == "" {
			return "", "", validationf("identification questions need a canonical answer")
		}
		return t, canonical, nil
	}

	correct := 0
	for i := range req.Options {
		req.Options[i].Text = strings.TrimSpace(req.Options[i].Text)
		if req.Options[i].Text == "" {
			return "", "", validationf("option text is required")
		}
		if len(req.Options[i].Text) > maxOptionText {
			return "", "", validationf("option text may not be longer than %d characters", maxOptionText)
		}
		if req.Options[i].IsCorrect {
			correct++
		}
	}
	if err := checkOptionShape(t, len(req.Options), correct); err != nil {
		return "", "", err
	}
	return t, "", nil
}

// checkOptionShape 选项题的数量与正确项约束，整题保存和单个选项修改共用
func checkOptionShape(t grading.Type, total, correct int) error {
	switch {
	case total < 2:
		return validationf("at least two options are required")
	case t == grading.TypeTrueFalse && total != 2:
		return validationf("true/false questions have exactly two options")
	case t.SingleCorrect() && correct != 1:
		return validationf("%s questions need exactly one correct option", t)
	case t == grading.TypeMultiple && correct < 1:
		return validationf("multiple choice questions need at least one correct option")
	}
	return nil
}

// verifyOptions 在同一事务内按写入后的状态校验，失败即回滚
func verifyOptions(repo *repository.QuestionRepository, question *model.Question) error {
	opts, err := repo.ListOptions(question.ID)
	if err != nil {
		return err
	}
	correct := 0
	for _, o := range opts {
		if o.IsCorrect {
			correct++
		}
	}
	return checkOptionShape(question.Type, len(opts), correct)
}

// UpsertQuestion questionID 为 0 时新建；选项按 ID 同步（有 ID 更新、无 ID 新建、缺失删除），同事务重算测验总分
func (s *QuestionService) UpsertQuestion(ctx context.Context, userID, quizID, questionID uint, req QuestionReq) (question *model.Question, err error) {
	ctx, span := tracing.Start(ctx, "QuestionService.UpsertQuestion",
		attribute.Int64("quiz.id", int64(quizID)),
		attribute.Int64("question.id", int64(questionID)),
	)
	defer func() { tracing.End(span, err) }()

	qType, canonical, err := req.normalize()
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quizRepo := s.QuizRepo.WithTx(tx)
		questionRepo := s.QuestionRepo.WithTx(tx)

		if _, err := ownedQuiz(quizRepo, quizID, userID); err != nil {
			return err
		}

		if questionID == 0 {
			pos, err := questionRepo.MaxPosition(quizID)
			if err != nil {
				return err
			}
			question = &model.Question{QuizID: quizID, Position: pos + 1}
		} else {
			question, err = questionRepo.LockByID(questionID)
			if err != nil {
				return notFound(err, util.ErrQuestionNotFound)
			}
			if question.QuizID != quizID {
				return util.ErrQuestionNotFound
			}
		}

		question.Prompt = req.Prompt
		question.Type = qType
		question.Points = req.Points
		question.Explanation = strings.TrimSpace(req.Explanation)
		question.CanonicalAnswer = canonical
		if req.Position != nil && *req.Position >= 0 {
			question.Position = *req.Position
		}

		if question.ID == 0 {
			err = questionRepo.Create(question)
		} else {
			err = questionRepo.Update(question)
		}
		if err != nil {
			return err
		}

		if err := s.syncOptions(questionRepo, question, req.Options); err != nil {
			return err
		}
		return quizRepo.RecomputeTotal(quizID)
	})
	if err != nil {
		return nil, err
	}

	// 总分可能变化
	invalidateStats(s.Stats, quizID)

	question, err = s.QuestionRepo.WithTx(s.DB.WithContext(ctx)).FindByID(question.ID)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("question saved",
		zap.Uint("quizID", quizID),
		zap.Uint("questionID", question.ID),
		zap.String("type", string(question.Type)),
		zap.Int("points", question.Points),
	)
	return question, nil
}

func (s *QuestionService) syncOptions(repo *repository.QuestionRepository, question *model.Question, reqs []OptionReq) error {
	existing := map[uint]*model.Option{}
	if question.ID != 0 {
		opts, err := repo.ListOptions(question.ID)
		if err != nil {
			return err
		}
		for _, o := range opts {
			existing[o.ID] = o
		}
	}

	// 填空题不保存选项
	if !question.Type.OptionBased() {
		reqs = nil
	}

	kept := map[uint]bool{}
	for i, r := range reqs {
		var opt *model.Option
		if r.ID != nil && *r.ID != 0 {
			o, ok := existing[*r.ID]
			if !ok {
				return fmt.Errorf("%w: option %d does not belong to this question", util.ErrValidation, *r.ID)
			}
			opt = o
			kept[o.ID] = true
		} else {
			opt = &model.Option{QuestionID: question.ID}
		}
		opt.Text = r.Text
		opt.IsCorrect = r.IsCorrect
		opt.Explanation = strings.TrimSpace(r.Explanation)
		opt.Position = i + 1

		var err error
		if opt.ID == 0 {
			err = repo.CreateOption(opt)
		} else {
			err = repo.UpdateOption(opt)
		}
		if err != nil {
			return err
		}
	}

	var removed []uint
	for id := range existing {
		if !kept[id] {
			removed = append(removed, id)
		}
	}
	return repo.DeleteOptions(removed)
}

func (s *QuestionService) DeleteQuestion(ctx context.Context, userID, questionID uint) (err error) {
	ctx, span := tracing.Start(ctx, "QuestionService.DeleteQuestion", attribute.Int64("question.id", int64(questionID)))
	defer func() { tracing.End(span, err) }()

	var quizID uint
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		questionRepo := s.QuestionRepo.WithTx(tx)
		quizRepo := s.QuizRepo.WithTx(tx)

		question, err := questionRepo.LockByID(questionID)
		if err != nil {
			return notFound(err, util.ErrQuestionNotFound)
		}
		if _, err := ownedQuiz(quizRepo, question.QuizID, userID); err != nil {
			return err
		}
		if err := questionRepo.Delete(questionID); err != nil {
			return err
		}
		quizID = question.QuizID
		return quizRepo.RecomputeTotal(question.QuizID)
	})
	if err != nil {
		return err
	}
	invalidateStats(s.Stats, quizID)
	return nil
}

// ReorderQuestions 只处理属于该测验的题目，位置从 1 开始
func (s *QuestionService) ReorderQuestions(ctx context.Context, userID, quizID uint, order []uint) (err error) {
	ctx, span := tracing.Start(ctx, "QuestionService.ReorderQuestions", attribute.Int64("quiz.id", int64(quizID)))
	defer func() { tracing.End(span, err) }()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		questionRepo := s.QuestionRepo.WithTx(tx)
		if _, err := ownedQuiz(s.QuizRepo.WithTx(tx), quizID, userID); err != nil {
			return err
		}
		questions, err := questionRepo.ListByQuiz(quizID)
		if err != nil {
			return err
		}
		return applyOrder(order, idsOf(questions), questionRepo.UpdatePosition)
	})
}

func idsOf(questions []*model.Question) map[uint]bool {
	ids := make(map[uint]bool, len(questions))
	for _, q := range questions {
		ids[q.ID] = true
	}
	return ids
}

func applyOrder(order []uint, allowed map[uint]bool, update func(id uint, position int) error) error {
	if len(order) == 0 {
		return validationf("order must not be empty")
	}
	seen := map[uint]bool{}
	pos := 0
	for _, id := range order {
		if !allowed[id] || seen[id] {
			continue
		}
		seen[id] = true
		pos++
		if err := update(id, pos); err != nil {
			return err
		}
	}
	return nil
}

// ownedQuestion 锁住题目并校验测验归属
func (s *QuestionService) ownedQuestion(tx *gorm.DB, userID, questionID uint) (*model.Question, error) {
	question, err := s.QuestionRepo.WithTx(tx).LockByID(questionID)
	if err != nil {
		return nil, notFound(err, util.ErrQuestionNotFound)
	}
	if _, err := ownedQuiz(s.QuizRepo.WithTx(tx), question.QuizID, userID); err != nil {
		return nil, err
	}
	return question, nil
}

// enforceSingleCorrectness 单选/判断题中某选项被设为正确时清除其余选项，必须与选项写入在同一事务
func enforceSingleCorrectness(repo *repository.QuestionRepository, question *model.Question, touched *model.Option) error {
	if !question.Type.SingleCorrect() || !touched.IsCorrect {
		return nil
	}
	return repo.ClearOtherCorrect(question.ID, touched.ID)
}

type CreateOptionReq struct {
	Text        string `json:"text"`
	IsCorrect   bool   `json:"isCorrect"`
	Position    *int   `json:"position"`
	Explanation string `json:"explanation"`
}

func (s *QuestionService) CreateOption(ctx context.Context, userID, questionID uint, req CreateOptionReq) (option *model.Option, err error) {
	ctx, span := tracing.Start(ctx, "QuestionService.CreateOption", attribute.Int64("question.id", int64(questionID)))
	defer func() { tracing.End(span, err) }()

	text := strings.TrimSpace(req.Text)
	if text == "" || len(text) > maxOptionText {
		return nil, validationf("option text is required and may not be longer than %d characters", maxOptionText)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.QuestionRepo.WithTx(tx)
		question, err := s.ownedQuestion(tx, userID, questionID)
		if err != nil {
			return err
		}
		if !question.Type.OptionBased() {
			return validationf("identification questions do not have options")
		}
		if question.Type == grading.TypeTrueFalse {
			return validationf("true/false questions have exactly two options")
		}

		option = &model.Option{
			QuestionID:  questionID,
			Text:        text,
			IsCorrect:   req.IsCorrect,
			Explanation: strings.TrimSpace(req.Explanation),
		}
		if req.Position != nil && *req.Position >= 0 {
			option.Position = *req.Position
		} else {
			maxPos, err := repo.MaxOptionPosition(questionID)
			if err != nil {
				return err
			}
			option.Position = maxPos + 1
		}

		if err := repo.CreateOption(option); err != nil {
			return err
		}
		if err := enforceSingleCorrectness(repo, question, option); err != nil {
			return err
		}
		return verifyOptions(repo, question)
	})
	if err != nil {
		return nil, err
	}
	return option, nil
}

// UpdateOptionReq nil 字段保持不变
type UpdateOptionReq struct {
	Text        *string `json:"text"`
	IsCorrect   *bool   `json:"isCorrect"`
	Position    *int    `json:"position"`
	Explanation *string `json:"explanation"`
}

func (s *QuestionService) UpdateOption(ctx context.Context, userID, optionID uint, req UpdateOptionReq) (option *model.Option, err error) {
	ctx, span := tracing.Start(ctx, "QuestionService.UpdateOption", attribute.Int64("option.id", int64(optionID)))
	defer func() { tracing.End(span, err) }()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.QuestionRepo.WithTx(tx)
		option, err = repo.FindOption(optionID)
		if err != nil {
			return notFound(err, util.ErrOptionNotFound)
		}
		question, err := s.ownedQuestion(tx, userID, option.QuestionID)
		if err != nil {
			return err
		}

		if req.Text != nil {
			text := strings.TrimSpace(*req.Text)
			if text == "" || len(text) > maxOptionText {
				return validationf("option text is required and may not be longer than %d characters", maxOptionText)
			}
			option.Text = text
		}
		if req.IsCorrect != nil {
			option.IsCorrect = *req.IsCorrect
		}
		if req.Position != nil && *req.Position >= 0 {
			option.Position = *req.Position
		}
		if req.Explanation != nil {
			option.Explanation = strings.TrimSpace(*req.Explanation)
		}

		if err := repo.UpdateOption(option); err != nil {
			return err
		}
		if req.IsCorrect == nil {
			return nil
		}
		if err := enforceSingleCorrectness(repo, question, option); err != nil {
			return err
		}
		return verifyOptions(repo, question)
	})
	if err != nil {
		return nil, err
	}
	return option, nil
}

// SetOptionCorrectness 只修改正确性标记
func (s *QuestionService) SetOptionCorrectness(ctx context.Context, userID, optionID uint, correct bool) (*model.Option, error) {
	return s.UpdateOption(ctx, userID, optionID, UpdateOptionReq{IsCorrect: &correct})
}

// DeleteOption 删除后仍须满足题型的选项约束
func (s *QuestionService) DeleteOption(ctx context.Context, userID, optionID uint) (err error) {
	ctx, span := tracing.Start(ctx, "QuestionService.DeleteOption", attribute.Int64("option.id", int64(optionID)))
	defer func() { tracing.End(span, err) }()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.QuestionRepo.WithTx(tx)
		option, err := repo.FindOption(optionID)
		if err != nil {
			return notFound(err, util.ErrOptionNotFound)
		}
		question, err := s.ownedQuestion(tx, userID, option.QuestionID)
		if err != nil {
			return err
		}
		if err := repo.DeleteOptions([]uint{optionID}); err != nil {
			return err
		}
		return verifyOptions(repo, question)
	})
}

// ReorderOptions 忽略不属于该题目的 ID
func (s *QuestionService) ReorderOptions(ctx context.Context, userID, questionID uint, order []uint) (err error) {
	ctx, span := tracing.Start(ctx, "QuestionService.ReorderOptions", attribute.Int64("question.id", int64(questionID)))
	defer func() { tracing.End(span, err) }()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.QuestionRepo.WithTx(tx)
		if _, err := s.ownedQuestion(tx, userID, questionID); err != nil {
			return err
		}
		opts, err := repo.ListOptions(questionID)
		if err != nil {
			return err
		}
		allowed := make(map[uint]bool, len(opts))
		for _, o := range opts {
			allowed[o.ID] = true
		}
		return applyOrder(order, allowed, repo.UpdateOptionPosition)
	})
}
