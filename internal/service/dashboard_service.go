package service

import (
	"context"
	"math"

	"studybuddy_backend/internal/model"
	"studybuddy_backend/internal/repository"
	"studybuddy_backend/internal/util"
)

const (
	recentLimit  = 5
	popularLimit = 3
)

type DashboardService struct {
	QuizRepo      *repository.QuizRepository
	DashboardRepo *repository.DashboardRepository
}

func NewDashboardService(quizRepo *repository.QuizRepository, dashboardRepo *repository.DashboardRepository) *DashboardService {
	return &DashboardService{
		QuizRepo:      quizRepo,
		DashboardRepo: dashboardRepo,
	}
}

type DashboardStats struct {
	MyQuizzes         int64   `json:"myQuizzes"`
	Attempts          int64   `json:"attempts"`
	AveragePercentage float64 `json:"avgScore"`
}

type RecentQuiz struct {
	ID         uint             `json:"id"`
	Title      string           `json:"title"`
	Slug       string           `json:"slug"`
	Visibility model.Visibility `json:"visibility"`
	AuthorName string           `json:"authorName"`
}

type Dashboard struct {
	Stats          DashboardStats                `json:"stats"`
	RecentQuizzes  []RecentQuiz                  `json:"recentQuizzes"`
	RecentAttempts []repository.RecentAttemptRow `json:"recentAttempts"`
	PopularQuizzes []repository.PopularQuizRow   `json:"popularQuizzes"`
}

func (s *DashboardService) GetUserDashboard(ctx context.Context, userID uint) (*Dashboard, error) {
	repo := &repository.DashboardRepository{DB: s.DashboardRepo.DB.WithContext(ctx)}

	myQuizzes, err := s.QuizRepo.WithTx(repo.DB).CountByAuthor(userID)
	if err != nil {
		return nil, err
	}
	attempts, err := repo.CountAttempts(userID)
	if err != nil {
		return nil, err
	}
	avg, err := repo.AveragePercentage(userID)
	if err != nil {
		return nil, err
	}

	quizzes, err := repo.RecentQuizzes(userID, recentLimit)
	if err != nil {
		return nil, err
	}
	recent := make([]RecentQuiz, 0, len(quizzes))
	for _, q := range quizzes {
		item := RecentQuiz{ID: q.ID, Title: q.Title, Slug: q.Slug, Visibility: q.Visibility}
		if q.Author != nil {
			item.AuthorName = q.Author.Name
		}
		recent = append(recent, item)
	}

	recentAttempts, err := repo.RecentAttempts(userID, recentLimit)
	if err != nil {
		return nil, err
	}

	popular, err := repo.PopularQuizzes(popularLimit)
	if err != nil {
		return nil, err
	}
	for i := range popular {
		popular[i].AvgPercentage = math.Round(popular[i].AvgPercentage)
	}

	return &Dashboard{
		Stats: DashboardStats{
			MyQuizzes:         myQuizzes,
			Attempts:          attempts,
			AveragePercentage: util.Round1(avg),
		},
		RecentQuizzes:  recent,
		RecentAttempts: recentAttempts,
		PopularQuizzes: popular,
	}, nil
}
