package service

import (
	"errors"
	"testing"

	"studybuddy_backend/internal/config"
	"studybuddy_backend/internal/grading"
	"studybuddy_backend/internal/model"
	"studybuddy_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertQuestion_Validation(t *testing.T) {
	f := newFixture(t, config.MaxScoreAtFinalize)
	author := f.user(t, "Author")
	quiz := f.quiz(t, author, "Rules")

	two := func(correctA, correctB bool) []OptionReq {
		return []OptionReq{{Text: "a", IsCorrect: correctA}, {Text: "b", IsCorrect: correctB}}
	}
	tests := []struct {
		name string
		req  QuestionReq
	}{
		{"empty prompt", QuestionReq{Prompt: " ", Type: "single", Points: 1, Options: two(true, false)}},
		{"unknown type", QuestionReq{Prompt: "p", Type: "essay", Points: 1}},
		{"zero points", QuestionReq{Prompt: "p", Type: "single", Points: 0, Options: two(true, false)}},
		{"too many points", QuestionReq{Prompt: "p", Type: "single", Points: 101, Options: two(true, false)}},
		{"one option", QuestionReq{Prompt: "p", Type: "single", Points: 1, Options: []OptionReq{{Text: "a", IsCorrect: true}}}},
		{"single two correct", QuestionReq{Prompt: "p", Type: "single", Points: 1, Options: two(true, true)}},
		{"single none correct", QuestionReq{Prompt: "p", Type: "single", Points: 1, Options: two(false, false)}},
		{"multiple none correct", QuestionReq{Prompt: "p", Type: "multiple", Points: 1, Options: two(false, false)}},
		{"true_false three options", QuestionReq{Prompt: "p", Type: "true_false", Points: 1, Options: append(two(true, false), OptionReq{Text: "c"})}},
		{"blank option text", QuestionReq{Prompt: "p", Type: "multiple", Points: 1, Options: []OptionReq{{Text: "a", IsCorrect: true}, {Text: "  "}}}},
		{"identification without answer", QuestionReq{Prompt: "p", Type: "identification", Points: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.questions.UpsertQuestion(ctx, author.ID, quiz.ID, 0, tc.req)
			assert.True(t, errors.Is(err, util.ErrValidation), "got %v", err)
		})
	}

	var n int64
	require.NoError(t, f.db.Model(&model.Question{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestUpsertQuestion_OnlyAuthor(t *testing.T) {
	f := newFixture(t, config.MaxScoreAtFinalize)
	author := f.user(t, "Author")
	other := f.user(t, "Other")
	quiz := f.quiz(t, author, "Mine")

	_, err := f.questions.UpsertQuestion(ctx, other.ID, quiz.ID, 0, QuestionReq{
		Prompt: "p", Type: "identification", Points: 1, CanonicalAnswer: "x",
	})
	assert.True(t, errors.Is(err, util.ErrForbidden))
}

func TestUpsertQuestion_TotalPointsFollowQuestions(t *testing.T) {
	f := newFixture(t, config.MaxScoreAtFinalize)
	author := f.user(t, "Author")
	quiz := f.quiz(t, author, "Totals")

	a := f.singleQuestion(t, author, quiz.ID, 4)
	b := f.identificationQuestion(t, author, quiz.ID, 6, "Paris")
	assert.Equal(t, 10, f.reloadQuiz(t, quiz.ID).TotalPoints)
	assert.Equal(t, 1, a.Position)
	assert.Equal(t, 2, b.Position)

	_, err := f.questions.UpsertQuestion(ctx, author.ID, quiz.ID, b.ID, QuestionReq{
		Prompt: "Capital of Italy?", Type: "identification", Points: 9, CanonicalAnswer: "Rome",
	})
	require.NoError(t, err)
	assert.Equal(t, 13, f.reloadQuiz(t, quiz.ID).TotalPoints)

	require.NoError(t, f.questions.DeleteQuestion(ctx, author.ID, a.ID))
	assert.Equal(t, 9, f.reloadQuiz(t, quiz.ID).TotalPoints)
}

func TestUpsertQuestion_SyncsOptions(t *testing.T) {
	f := newFixture(t, config.MaxScoreAtFinalize)
	author := f.user(t, "Author")
	quiz := f.quiz(t, author, "Sync")
	q := f.singleQuestion(t, author, quiz.ID, 2)
	keep := q.Options[1].ID

	updated, err := f.questions.UpsertQuestion(ctx, author.ID, quiz.ID, q.ID, QuestionReq{
		Prompt: "Which one now?",
		Type:   "single",
		Points: 2,
		Options: []OptionReq{
			{ID: &keep, Text: "now right", IsCorrect: true},
			{Text: "brand new"},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.Options, 2)
	assert.Equal(t, keep, updated.Options[0].ID)
	assert.True(t, updated.Options[0].IsCorrect)
	assert.Equal(t, "brand new", updated.Options[1].Text)
	assert.False(t, updated.Options[1].IsCorrect)

	foreign := uint(99999)
	_, err = f.questions.UpsertQuestion(ctx, author.ID, quiz.ID, q.ID, QuestionReq{
		Prompt: "x", Type: "single", Points: 2,
		Options: []OptionReq{{ID: &foreign, Text: "a", IsCorrect: true}, {Text: "b"}},
	})
	assert.True(t, errors.Is(err, util.ErrValidation))
}

func TestUpsertQuestion_IdentificationFromCorrectOption(t *testing.T) {
	f := newFixture(t, config.MaxScoreAtFinalize)
	author := f.user(t, "Author")
	quiz := f.quiz(t, author, "Ident")

	q, err := f.questions.UpsertQuestion(ctx, author.ID, quiz.ID, 0, QuestionReq{
		Prompt:  "Largest planet?",
		Type:    "identification",
		Points:  2,
		Options: []OptionReq{{Text: " Jupiter ", IsCorrect: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Jupiter", q.CanonicalAnswer)
	assert.Empty(t, q.Options)
}

func TestDeleteQuestion_RecomputesInProgressScore(t *testing.T) {
	f := newFixture(t, config.MaxScoreAtFinalize)
	author := f.user(t, "Author")
	taker := f.user(t, "Taker")
	quiz := f.quiz(t, author, "Shrinking")
	a := f.singleQuestion(t, author, quiz.ID, 3)
	b := f.singleQuestion(t, author, quiz.ID, 5)

	attempt, _, err := f.attempts.StartOrResume(ctx, taker.ID, quiz.ID)
	require.NoError(t, err)
	for _, q := range []*model.Question{a, b} {
		_, _, err := f.attempts.RecordAnswer(ctx, taker.ID, attempt.ID, AnswerInput{QuestionID: q.ID, OptionIDs: []uint{q.Options[0].ID}})
		require.NoError(t, err)
	}
	assert.Equal(t, 8, f.reloadAttempt(t, attempt.ID).Score)

	assert.True(t, errors.Is(f.questions.DeleteQuestion(ctx, taker.ID, b.ID), util.ErrForbidden))
	require.NoError(t, f.questions.DeleteQuestion(ctx, author.ID, b.ID))

	assert.Equal(t, 3, f.reloadAttempt(t, attempt.ID).Score)
	f.assertScoreConsistent(t, attempt.ID)

	done, err := f.attempts.Finalize(ctx, taker.ID, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, done.MaxScore)
	assert.Equal(t, 100.0, done.Percentage)
}

func TestOptionCorrectness_SingleIsExclusive(t *testing.T) {
	f := newFixture(t, config.MaxScoreAtFinalize)
	author := f.user(t, "Author")
	quiz := f.quiz(t, author, "Exclusive")
	q := f.singleQuestion(t, author, quiz.ID, 1)

	_, err := f.questions.SetOptionCorrectness(ctx, author.ID, q.Options[2].ID, true)
	require.NoError(t, err)

	correct := func(questionID uint) []uint {
		var ids []uint
		require.NoError(t, f.db.Model(&model.Option{}).
			Where("question_id = ? AND is_correct = ?", questionID, true).
			Pluck("id", &ids).Error)
		return ids
	}
	assert.Equal(t, []uint{q.Options[2].ID}, correct(q.ID))

	added, err := f.questions.CreateOption(ctx, author.ID, q.ID, CreateOptionReq{Text: "newcomer", IsCorrect: true})
	require.NoError(t, err)
	assert.Equal(t, 4, added.Position)
	assert.Equal(t, []uint{added.ID}, correct(q.ID))

	m := f.multipleQuestion(t, author, quiz.ID, 1)
	_, err = f.questions.SetOptionCorrectness(ctx, author.ID, m.Options[2].ID, true)
	require.NoError(t, err)
	assert.Len(t, correct(m.ID), 3)
}

func TestOptionEditing(t *testing.T) {
	f := newFixture(t, config.MaxScoreAtFinalize)
	author := f.user(t, "Author")
	other := f.user(t, "Other")
	quiz := f.quiz(t, author, "Options")
	q := f.multipleQuestion(t, author, quiz.ID, 1)
	ident := f.identificationQuestion(t, author, quiz.ID, 1, "x")

	_, err := f.questions.CreateOption(ctx, author.ID, ident.ID, CreateOptionReq{Text: "nope"})
	assert.True(t, errors.Is(err, util.ErrValidation))

	_, err = f.questions.CreateOption(ctx, other.ID, q.ID, CreateOptionReq{Text: "sneaky"})
	assert.True(t, errors.Is(err, util.ErrForbidden))

	_, err = f.questions.UpdateOption(ctx, author.ID, q.Options[0].ID, UpdateOptionReq{Text: strPtr(" ")})
	assert.True(t, errors.Is(err, util.ErrValidation))

	opt, err := f.questions.UpdateOption(ctx, author.ID, q.Options[0].ID, UpdateOptionReq{Text: strPtr("two"), Explanation: strPtr("smallest prime")})
	require.NoError(t, err)
	assert.Equal(t, "two", opt.Text)
	assert.True(t, opt.IsCorrect)

	require.NoError(t, f.questions.DeleteOption(ctx, author.ID, q.Options[2].ID))
	_, err = f.questions.UpdateOption(ctx, author.ID, q.Options[2].ID, UpdateOptionReq{Text: strPtr("gone")})
	assert.True(t, errors.Is(err, util.ErrOptionNotFound))
}

func TestReorder(t *testing.T) {
	f := newFixture(t, config.MaxScoreAtFinalize)
	author := f.user(t, "Author")
	quiz := f.quiz(t, author, "Order")
	other := f.quiz(t, author, "Elsewhere")
	a := f.singleQuestion(t, author, quiz.ID, 1)
	b := f.singleQuestion(t, author, quiz.ID, 1)
	c := f.singleQuestion(t, author, quiz.ID, 1)
	foreign := f.singleQuestion(t, author, other.ID, 1)

	require.NoError(t, f.questions.ReorderQuestions(ctx, author.ID, quiz.ID, []uint{c.ID, foreign.ID, a.ID, b.ID, a.ID}))

	reloaded, err := f.quizzes.GetQuiz(ctx, author.ID, quiz.ID)
	require.NoError(t, err)
	var order []uint
	for _, q := range reloaded.Questions {
		order = append(order, q.ID)
	}
	assert.Equal(t, []uint{c.ID, a.ID, b.ID}, order)
	assert.Equal(t, 1, reloaded.Questions[0].Position)

	var foreignNow model.Question
	require.NoError(t, f.db.First(&foreignNow, foreign.ID).Error)
	assert.Equal(t, 1, foreignNow.Position)

	assert.True(t, errors.Is(f.questions.ReorderQuestions(ctx, author.ID, quiz.ID, nil), util.ErrValidation))

	opts := a.Options
	require.NoError(t, f.questions.ReorderOptions(ctx, author.ID, a.ID, []uint{opts[2].ID, opts[0].ID, opts[1].ID}))
	q, err := f.questions.QuestionRepo.FindByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{opts[2].ID, opts[0].ID, opts[1].ID}, []uint{q.Options[0].ID, q.Options[1].ID, q.Options[2].ID})
}

func TestOptionEditsKeepQuestionShape(t *testing.T) {
	f := newFixture(t, config.MaxScoreAtFinalize)
	author := f.user(t, "Author")
	quiz := f.quiz(t, author, "Shape")

	tf, err := f.questions.UpsertQuestion(ctx, author.ID, quiz.ID, 0, QuestionReq{
		Prompt:  "The sky is blue",
		Type:    string(grading.TypeTrueFalse),
		Points:  1,
		Options: []OptionReq{{Text: "True", IsCorrect: true}, {Text: "False"}},
	})
	require.NoError(t, err)

	_, err = f.questions.CreateOption(ctx, author.ID, tf.ID, CreateOptionReq{Text: "Maybe"})
	assert.True(t, errors.Is(err, util.ErrValidation))
	err = f.questions.DeleteOption(ctx, author.ID, tf.Options[1].ID)
	assert.True(t, errors.Is(err, util.ErrValidation))
	_, err = f.questions.SetOptionCorrectness(ctx, author.ID, tf.Options[0].ID, false)
	assert.True(t, errors.Is(err, util.ErrValidation))
	// 换一个正确项仍然合法
	_, err = f.questions.SetOptionCorrectness(ctx, author.ID, tf.Options[1].ID, true)
	require.NoError(t, err)

	m := f.multipleQuestion(t, author, quiz.ID, 1)
	_, err = f.questions.SetOptionCorrectness(ctx, author.ID, m.Options[0].ID, false)
	require.NoError(t, err)
	_, err = f.questions.SetOptionCorrectness(ctx, author.ID, m.Options[1].ID, false)
	assert.True(t, errors.Is(err, util.ErrValidation))
	err = f.questions.DeleteOption(ctx, author.ID, m.Options[1].ID)
	assert.True(t, errors.Is(err, util.ErrValidation))

	require.NoError(t, f.questions.DeleteOption(ctx, author.ID, m.Options[2].ID))
	err = f.questions.DeleteOption(ctx, author.ID, m.Options[0].ID)
	assert.True(t, errors.Is(err, util.ErrValidation))

	// 被拒绝的修改已回滚
	var opts []model.Option
	require.NoError(t, f.db.Where("question_id = ?", m.ID).Order("position asc").Find(&opts).Error)
	require.Len(t, opts, 2)
	assert.False(t, opts[0].IsCorrect)
	assert.True(t, opts[1].IsCorrect)
}
