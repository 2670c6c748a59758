package repository

import (
	"database/sql"

	"studybuddy_backend/internal/model"

	"gorm.io/gorm"
)

type DashboardRepository struct {
	DB *gorm.DB
}

func NewDashboardRepository(db *gorm.DB) *DashboardRepository {
	return &DashboardRepository{DB: db}
}

const completedPercentExpr = "AVG(score * 100.0 / max_score)"

func (r *DashboardRepository) CountAttempts(userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Attempt{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// AveragePercentage 仅统计已完成且满分大于 0 的答题
func (r *DashboardRepository) AveragePercentage(userID uint) (float64, error) {
	var avg sql.NullFloat64
	err := r.DB.Model(&model.Attempt{}).
		Select(completedPercentExpr).
		Where("user_id = ? AND status = ? AND max_score > 0", userID, model.AttemptCompleted).
		Scan(&avg).Error
	return avg.Float64, err
}

func (r *DashboardRepository) RecentQuizzes(userID uint, limit int) ([]model.Quiz, error) {
	var quizzes []model.Quiz
	err := r.DB.Preload("Author").
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&quizzes).Error
	return quizzes, err
}

type RecentAttemptRow struct {
	ID        uint                `json:"id"`
	QuizID    uint                `json:"quizId"`
	QuizTitle string              `json:"quizTitle"`
	Score     int                 `json:"score"`
	MaxScore  int                 `json:"maxScore"`
	Status    model.AttemptStatus `json:"status"`
}

func (r *DashboardRepository) RecentAttempts(userID uint, limit int) ([]RecentAttemptRow, error) {
	var rows []RecentAttemptRow
	err := r.DB.Table("attempts a").
		Select("a.id, a.quiz_id, q.title AS quiz_title, a.score, a.max_score, a.status").
		Joins("JOIN quizzes q ON q.id = a.quiz_id AND q.deleted_at IS NULL").
		Where("a.user_id = ?", userID).
		Order("a.created_at desc, a.id desc").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

type PopularQuizRow struct {
	ID            uint    `json:"id"`
	Title         string  `json:"title"`
	Slug          string  `json:"slug"`
	AuthorName    string  `json:"authorName"`
	AttemptsCount int64   `json:"attemptsCount"`
	AvgPercentage float64 `json:"avgScore"`
}

// PopularQuizzes 公开测验按答题次数倒序，附带平均得分率
func (r *DashboardRepository) PopularQuizzes(limit int) ([]PopularQuizRow, error) {
	var rows []PopularQuizRow
	err := r.DB.Table("quizzes q").
		Select("q.id, q.title, q.slug, u.name AS author_name, COUNT(a.id) AS attempts_count").
		Joins("JOIN attempts a ON a.quiz_id = q.id").
		Joins("LEFT JOIN users u ON u.id = q.user_id").
		Where("q.visibility = ? AND q.deleted_at IS NULL", model.VisibilityPublic).
		Group("q.id, q.title, q.slug, u.name").
		Order("attempts_count desc, q.id asc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for i := range rows {
		var avg sql.NullFloat64
		err := r.DB.Model(&model.Attempt{}).
			Select(completedPercentExpr).
			Where("quiz_id = ? AND status = ? AND max_score > 0", rows[i].ID, model.AttemptCompleted).
			Scan(&avg).Error
		if err != nil {
			return nil, err
		}
		rows[i].AvgPercentage = avg.Float64
	}
	return rows, nil
}
