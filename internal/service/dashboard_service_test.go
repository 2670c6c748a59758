package service

import (
	"testing"

	"studybuddy_backend/internal/config"
	"studybuddy_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserDashboard(t *testing.T) {
	f := newFixture(t, config.MaxScoreAtFinalize)
	author := f.user(t, "Author")
	taker := f.user(t, "Taker")

	popular := f.quiz(t, author, "Popular")
	pq := f.singleQuestion(t, author, popular.ID, 3)
	quiet := f.quiz(t, author, "Quiet")
	qq := f.singleQuestion(t, author, quiet.ID, 1)
	f.quiz(t, author, "Secret", func(r *QuizReq) { r.Visibility = strPtr("private") })

	finish := func(u *model.User, quizID uint, q *model.Question, right bool) {
		attempt, _, err := f.attempts.StartOrResume(ctx, u.ID, quizID)
		require.NoError(t, err)
		opt := q.Options[1].ID
		if right {
			opt = q.Options[0].ID
		}
		_, _, err = f.attempts.RecordAnswer(ctx, u.ID, attempt.ID, AnswerInput{QuestionID: q.ID, OptionIDs: []uint{opt}})
		require.NoError(t, err)
		_, err = f.attempts.Finalize(ctx, u.ID, attempt.ID)
		require.NoError(t, err)
	}
	finish(taker, popular.ID, pq, true)
	finish(taker, popular.ID, pq, false)
	finish(author, popular.ID, pq, true)
	finish(taker, quiet.ID, qq, true)
	// 进行中的答题不计入平均
	_, _, err := f.attempts.StartOrResume(ctx, taker.ID, quiet.ID)
	require.NoError(t, err)

	board, err := f.dashboard.GetUserDashboard(ctx, taker.ID)
	require.NoError(t, err)
	assert.Zero(t, board.Stats.MyQuizzes)
	assert.Equal(t, int64(4), board.Stats.Attempts)
	assert.Equal(t, 66.7, board.Stats.AveragePercentage)
	assert.Empty(t, board.RecentQuizzes)
	assert.Len(t, board.RecentAttempts, 4)
	for _, ra := range board.RecentAttempts {
		assert.NotEmpty(t, ra.QuizTitle)
	}

	require.Len(t, board.PopularQuizzes, 2)
	assert.Equal(t, popular.ID, board.PopularQuizzes[0].ID)
	assert.Equal(t, int64(3), board.PopularQuizzes[0].AttemptsCount)
	assert.Equal(t, 67.0, board.PopularQuizzes[0].AvgPercentage)
	assert.Equal(t, "Author", board.PopularQuizzes[0].AuthorName)
	assert.Equal(t, quiet.ID, board.PopularQuizzes[1].ID)

	mine, err := f.dashboard.GetUserDashboard(ctx, author.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), mine.Stats.MyQuizzes)
	assert.Len(t, mine.RecentQuizzes, 3)
	assert.Equal(t, "Author", mine.RecentQuizzes[0].AuthorName)
	assert.Equal(t, 100.0, mine.Stats.AveragePercentage)
}

func TestGetUserDashboard_Empty(t *testing.T) {
	f := newFixture(t, config.MaxScoreAtFinalize)
	u := f.user(t, "Newcomer")

	board, err := f.dashboard.GetUserDashboard(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, board.Stats.Attempts)
	assert.Zero(t, board.Stats.AveragePercentage)
	assert.Empty(t, board.PopularQuizzes)
}
