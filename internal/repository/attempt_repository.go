package repository

import (
	"errors"
	"studybuddy_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) WithTx(tx *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: tx}
}

func (r *AttemptRepository) Create(attempt *model.Attempt) error {
	return r.DB.Omit("Answers", "User").Create(attempt).Error
}

func (r *AttemptRepository) Update(attempt *model.Attempt) error {
	return r.DB.Omit("Answers", "User").Save(attempt).Error
}

func (r *AttemptRepository) FindByID(id uint) (*model.Attempt, error) {
	var a model.Attempt
	if err := r.DB.First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// LockByID SELECT ... FOR UPDATE，所有写答案与状态变更前必须先锁行
func (r *AttemptRepository) LockByID(id uint) (*model.Attempt, error) {
	var a model.Attempt
	if err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// FindInProgress 未找到时返回 nil, nil
func (r *AttemptRepository) FindInProgress(quizID, userID uint) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.Where("quiz_id = ? AND user_id = ? AND status = ?", quizID, userID, model.AttemptInProgress).
		Order("id desc").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) CountCompleted(quizID, userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Attempt{}).
		Where("quiz_id = ? AND user_id = ? AND status = ?", quizID, userID, model.AttemptCompleted).
		Count(&count).Error
	return count, err
}

func (r *AttemptRepository) ListAnswers(attemptID uint) ([]*model.Answer, error) {
	var answers []*model.Answer
	err := r.DB.Preload("Selections").Where("attempt_id = ?", attemptID).Order("id asc").Find(&answers).Error
	for _, a := range answers {
		a.FillSelected()
	}
	return answers, err
}

// UpsertAnswer 每个 (attempt, question) 只保留一行，重复提交覆盖并替换所选选项
func (r *AttemptRepository) UpsertAnswer(answer *model.Answer, optionIDs []uint) error {
	var existing model.Answer
	err := r.DB.Where("attempt_id = ? AND question_id = ?", answer.AttemptID, answer.QuestionID).First(&existing).Error
	switch {
	case err == nil:
		answer.ID = existing.ID
		answer.CreatedAt = existing.CreatedAt
		answer.UpdatedAt = time.Now()
		if err := r.DB.Model(&existing).Updates(map[string]interface{}{
			"answer_text":    answer.AnswerText,
			"is_correct":     answer.IsCorrect,
			"points_awarded": answer.PointsAwarded,
			"updated_at":     answer.UpdatedAt,
		}).Error; err != nil {
			return err
		}
		if err := r.DB.Where("answer_id = ?", existing.ID).Delete(&model.AnswerSelection{}).Error; err != nil {
			return err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := r.DB.Omit("Selections").Create(answer).Error; err != nil {
			return err
		}
	default:
		return err
	}

	if len(optionIDs) == 0 {
		answer.SelectedOptionIDs = []uint{}
		return nil
	}
	rows := make([]model.AnswerSelection, 0, len(optionIDs))
	for _, id := range optionIDs {
		rows = append(rows, model.AnswerSelection{AnswerID: answer.ID, OptionID: id})
	}
	answer.SelectedOptionIDs = optionIDs
	return r.DB.Create(&rows).Error
}

// DeleteAnswer 返回是否删除了记录
func (r *AttemptRepository) DeleteAnswer(attemptID, questionID uint) (bool, error) {
	var existing model.Answer
	err := r.DB.Where("attempt_id = ? AND question_id = ?", attemptID, questionID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := r.DB.Where("answer_id = ?", existing.ID).Delete(&model.AnswerSelection{}).Error; err != nil {
		return false, err
	}
	return true, r.DB.Delete(&existing).Error
}

func (r *AttemptRepository) SumAwarded(attemptID uint) (int, error) {
	var total int
	err := r.DB.Model(&model.Answer{}).
		Select("COALESCE(SUM(points_awarded), 0)").
		Where("attempt_id = ?", attemptID).
		Scan(&total).Error
	return total, err
}

func (r *AttemptRepository) UpdateScore(attemptID uint, score int) error {
	return r.DB.Model(&model.Attempt{}).Where("id = ?", attemptID).Updates(map[string]interface{}{
		"score":      score,
		"updated_at": time.Now(),
	}).Error
}

// Delete 先删作答与选项，再删答题记录
func (r *AttemptRepository) Delete(id uint) error {
	answerIDs := r.DB.Model(&model.Answer{}).Select("id").Where("attempt_id = ?", id)
	if err := r.DB.Where("answer_id IN (?)", answerIDs).Delete(&model.AnswerSelection{}).Error; err != nil {
		return err
	}
	if err := r.DB.Where("attempt_id = ?", id).Delete(&model.Answer{}).Error; err != nil {
		return err
	}
	return r.DB.Delete(&model.Attempt{}, id).Error
}

// ListByQuiz userID 为 0 时返回该测验全部答题（作者视角）
func (r *AttemptRepository) ListByQuiz(quizID, userID uint) ([]*model.Attempt, error) {
	var attempts []*model.Attempt
	query := r.DB.Preload("User").Where("quiz_id = ?", quizID)
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	err := query.Order("created_at desc, id desc").Find(&attempts).Error
	return attempts, err
}

type AttemptStatsRow struct {
	Total        int64
	Completed    int64
	BestScore    *int
	AverageScore *float64
}

func (r *AttemptRepository) Stats(quizID, userID uint) (*AttemptStatsRow, error) {
	var row AttemptStatsRow
	query := r.DB.Model(&model.Attempt{}).
		Select("COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed, "+
			"MAX(CASE WHEN status = ? THEN score END) AS best_score, "+
			"AVG(CASE WHEN status = ? THEN score END) AS average_score",
			model.AttemptCompleted, model.AttemptCompleted, model.AttemptCompleted).
		Where("quiz_id = ?", quizID)
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}
	if err := query.Scan(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// LatestByUser 每个测验取该用户最新一次答题
func (r *AttemptRepository) LatestByUser(userID uint, quizIDs []uint) (map[uint]*model.Attempt, error) {
	result := make(map[uint]*model.Attempt, len(quizIDs))
	if len(quizIDs) == 0 {
		return result, nil
	}
	var attempts []*model.Attempt
	err := r.DB.Where("user_id = ? AND quiz_id IN ?", userID, quizIDs).
		Order("created_at desc, id desc").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		if _, ok := result[a.QuizID]; !ok {
			result[a.QuizID] = a
		}
	}
	return result, nil
}
