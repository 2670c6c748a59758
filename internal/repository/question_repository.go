package repository

import (
	"studybuddy_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) WithTx(tx *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: tx}
}

func (r *QuestionRepository) Create(question *model.Question) error {
	return r.DB.Omit("Options").Create(question).Error
}

func (r *QuestionRepository) Update(question *model.Question) error {
	return r.DB.Omit("Options").Save(question).Error
}

func (r *QuestionRepository) FindByID(id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.Preload("Options", func(db *gorm.DB) *gorm.DB {
		return db.Order("position asc, id asc")
	}).First(&q, id).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// LockByID 行锁住题目，用于选项正确性互斥与同题并发编辑
func (r *QuestionRepository) LockByID(id uint) (*model.Question, error) {
	var q model.Question
	if err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&q, id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuestionRepository) ListByQuiz(quizID uint) ([]*model.Question, error) {
	var qs []*model.Question
	err := r.DB.Where("quiz_id = ?", quizID).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position asc, id asc")
		}).
		Order("position asc, id asc").
		Find(&qs).Error
	return qs, err
}

func (r *QuestionRepository) MaxPosition(quizID uint) (int, error) {
	var pos int
	err := r.DB.Model(&model.Question{}).Select("COALESCE(MAX(position), 0)").Where("quiz_id = ?", quizID).Scan(&pos).Error
	return pos, err
}

func (r *QuestionRepository) UpdatePosition(id uint, position int) error {
	return r.DB.Model(&model.Question{}).Where("id = ?", id).UpdateColumn("position", position).Error
}

// Delete 删除题目及其选项，并清掉各答题中对该题的作答；进行中答题的得分随之重算
func (r *QuestionRepository) Delete(id uint) error {
	answerIDs := r.DB.Model(&model.Answer{}).Select("id").Where("question_id = ?", id)
	if err := r.DB.Where("answer_id IN (?)", answerIDs).Delete(&model.AnswerSelection{}).Error; err != nil {
		return err
	}

	var attemptIDs []uint
	if err := r.DB.Model(&model.Answer{}).Where("question_id = ?", id).Pluck("attempt_id", &attemptIDs).Error; err != nil {
		return err
	}
	if err := r.DB.Where("question_id = ?", id).Delete(&model.Answer{}).Error; err != nil {
		return err
	}
	if len(attemptIDs) > 0 {
		err := r.DB.Model(&model.Attempt{}).
			Where("id IN ? AND status = ?", attemptIDs, model.AttemptInProgress).
			UpdateColumn("score", gorm.Expr("(SELECT COALESCE(SUM(points_awarded), 0) FROM answers WHERE answers.attempt_id = attempts.id)")).Error
		if err != nil {
			return err
		}
	}

	if err := r.DB.Where("question_id = ?", id).Delete(&model.Option{}).Error; err != nil {
		return err
	}
	return r.DB.Delete(&model.Question{}, id).Error
}

func (r *QuestionRepository) CreateOption(option *model.Option) error {
	return r.DB.Create(option).Error
}

func (r *QuestionRepository) UpdateOption(option *model.Option) error {
	return r.DB.Save(option).Error
}

func (r *QuestionRepository) FindOption(id uint) (*model.Option, error) {
	var o model.Option
	if err := r.DB.First(&o, id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *QuestionRepository) ListOptions(questionID uint) ([]*model.Option, error) {
	var opts []*model.Option
	err := r.DB.Where("question_id = ?", questionID).Order("position asc, id asc").Find(&opts).Error
	return opts, err
}

func (r *QuestionRepository) MaxOptionPosition(questionID uint) (int, error) {
	var pos int
	err := r.DB.Model(&model.Option{}).Select("COALESCE(MAX(position), 0)").Where("question_id = ?", questionID).Scan(&pos).Error
	return pos, err
}

func (r *QuestionRepository) UpdateOptionPosition(id uint, position int) error {
	return r.DB.Model(&model.Option{}).Where("id = ?", id).UpdateColumn("position", position).Error
}

// ClearOtherCorrect 单选/判断题：除 keepID 外全部置为不正确
func (r *QuestionRepository) ClearOtherCorrect(questionID, keepID uint) error {
	return r.DB.Model(&model.Option{}).
		Where("question_id = ? AND id <> ? AND is_correct = ?", questionID, keepID, true).
		UpdateColumn("is_correct", false).Error
}

func (r *QuestionRepository) DeleteOptions(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.DB.Where("option_id IN ?", ids).Delete(&model.AnswerSelection{}).Error; err != nil {
		return err
	}
	return r.DB.Where("id IN ?", ids).Delete(&model.Option{}).Error
}
