package repository

import (
	"studybuddy_backend/internal/model"

	"gorm.io/gorm"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

// WithTx 返回绑定到事务的仓库副本
func (r *QuizRepository) WithTx(tx *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: tx}
}

func (r *QuizRepository) Create(quiz *model.Quiz) error {
	return r.DB.Create(quiz).Error
}

func (r *QuizRepository) Update(quiz *model.Quiz) error {
	return r.DB.Omit("Questions", "Author").Save(quiz).Error
}

func (r *QuizRepository) FindByID(id uint) (*model.Quiz, error) {
	var quiz model.Quiz
	if err := r.DB.First(&quiz, id).Error; err != nil {
		return nil, err
	}
	return &quiz, nil
}

// FindWithQuestions 按 position 排序预加载题目与选项
func (r *QuizRepository) FindWithQuestions(id uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.
		Preload("Author").
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc, id asc")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc, id asc")
		}).
		First(&quiz, id).Error
	if err != nil {
		return nil, err
	}
	return &quiz, nil
}

// SlugExists 包含已软删除的记录，唯一索引不区分
func (r *QuizRepository) SlugExists(slug string) (bool, error) {
	var count int64
	err := r.DB.Unscoped().Model(&model.Quiz{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

// Delete 级联删除题目、选项、答题记录
func (r *QuizRepository) Delete(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		attemptIDs := tx.Model(&model.Attempt{}).Select("id").Where("quiz_id = ?", id)
		answerIDs := tx.Model(&model.Answer{}).Select("id").Where("attempt_id IN (?)", attemptIDs)
		if err := tx.Where("answer_id IN (?)", answerIDs).Delete(&model.AnswerSelection{}).Error; err != nil {
			return err
		}
		if err := tx.Where("attempt_id IN (?)", attemptIDs).Delete(&model.Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("quiz_id = ?", id).Delete(&model.Attempt{}).Error; err != nil {
			return err
		}
		questionIDs := tx.Model(&model.Question{}).Select("id").Where("quiz_id = ?", id)
		if err := tx.Where("question_id IN (?)", questionIDs).Delete(&model.Option{}).Error; err != nil {
			return err
		}
		if err := tx.Where("quiz_id = ?", id).Delete(&model.Question{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Quiz{}, id).Error
	})
}

func (r *QuizRepository) ListPublic(page, limit, offset int) ([]model.Quiz, int64, error) {
	var total int64
	query := r.DB.Model(&model.Quiz{}).Where("visibility = ?", model.VisibilityPublic).Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var quizzes []model.Quiz
	err := query.Preload("Author").
		Order("created_at desc, id desc").
		Offset(offset).Limit(limit).
		Find(&quizzes).Error
	return quizzes, total, err
}

type QuizListRow struct {
	model.Quiz
	QuestionCount int64 `json:"questionCount"`
	AttemptCount  int64 `json:"attemptCount"`
}

func (r *QuizRepository) ListByAuthor(userID uint) ([]QuizListRow, error) {
	var rows []QuizListRow
	err := r.DB.Model(&model.Quiz{}).
		Select("quizzes.*, "+
			"(SELECT COUNT(*) FROM questions q WHERE q.quiz_id = quizzes.id AND q.deleted_at IS NULL) AS question_count, "+
			"(SELECT COUNT(*) FROM attempts a WHERE a.quiz_id = quizzes.id) AS attempt_count").
		Where("quizzes.user_id = ?", userID).
		Order("quizzes.created_at desc, quizzes.id desc").
		Scan(&rows).Error
	return rows, err
}

func (r *QuizRepository) CountByAuthor(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Quiz{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *QuizRepository) SumPoints(quizID uint) (int, error) {
	var total int
	err := r.DB.Model(&model.Question{}).
		Select("COALESCE(SUM(points), 0)").
		Where("quiz_id = ?", quizID).
		Scan(&total).Error
	return total, err
}

// RecomputeTotal 单条 UPDATE 重算缓存的总分，不经过模型钩子
func (r *QuizRepository) RecomputeTotal(quizID uint) error {
	return r.DB.Model(&model.Quiz{}).
		Where("id = ?", quizID).
		UpdateColumn("total_points", gorm.Expr(
			"(SELECT COALESCE(SUM(points), 0) FROM questions WHERE quiz_id = ? AND deleted_at IS NULL)", quizID,
		)).Error
}

// RecomputeAllTotals 修复所有测验的缓存总分，返回被修正的行数
func (r *QuizRepository) RecomputeAllTotals() (int64, error) {
	res := r.DB.Model(&model.Quiz{}).
		Where("total_points <> (SELECT COALESCE(SUM(points), 0) FROM questions WHERE questions.quiz_id = quizzes.id AND questions.deleted_at IS NULL)").
		UpdateColumn("total_points", gorm.Expr(
			"(SELECT COALESCE(SUM(points), 0) FROM questions WHERE questions.quiz_id = quizzes.id AND questions.deleted_at IS NULL)",
		))
	return res.RowsAffected, res.Error
}
