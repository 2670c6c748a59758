package model

import (
	"fmt"
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// swagger:model Attempt
type Attempt struct {
	ID     uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	QuizID uint          `gorm:"index:idx_attempt_quiz_user;not null" json:"quizId"`
	UserID uint          `gorm:"index:idx_attempt_quiz_user;not null" json:"userId"`
	User   *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Status AttemptStatus `gorm:"size:20;not null;default:'in_progress';index" json:"status"`
	// ActiveKey 进行中时为 "quiz:user"，结束后置 NULL；唯一索引保证同一用户同一测验最多一个进行中的答题
	ActiveKey        *string    `gorm:"size:64;uniqueIndex" json:"-"`
	StartedAt        time.Time  `json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt"`
	Score            int        `gorm:"not null;default:0" json:"score"`
	MaxScore         int        `gorm:"not null;default:0" json:"maxScore"`
	Percentage       float64    `gorm:"not null;default:0" json:"percentage"`
	TimeTakenSeconds int        `gorm:"not null;default:0" json:"timeTakenSeconds"`
	Timestamps
	Answers []*Answer `gorm:"foreignKey:AttemptID" json:"answers,omitempty"`
}

func (Attempt) TableName() string {
	return "attempts"
}

func ActiveKeyFor(quizID, userID uint) string {
	return fmt.Sprintf("%d:%d", quizID, userID)
}

func (a *Attempt) InProgress() bool {
	return a.Status == AttemptInProgress
}

// swagger:model Answer
type Answer struct {
	ID            uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	AttemptID     uint   `gorm:"uniqueIndex:uq_answer_attempt_question;not null" json:"attemptId"`
	QuestionID    uint   `gorm:"uniqueIndex:uq_answer_attempt_question;not null" json:"questionId"`
	AnswerText    string `gorm:"type:text" json:"answerText,omitempty"`
	IsCorrect     bool   `gorm:"not null;default:false" json:"isCorrect"`
	PointsAwarded int    `gorm:"not null;default:0" json:"pointsAwarded"`
	Timestamps
	Selections []AnswerSelection `gorm:"foreignKey:AnswerID" json:"-"`
	// SelectedOptionIDs 由 Selections 填充，不落库
	SelectedOptionIDs []uint `gorm:"-" json:"selectedOptionIds"`
}

func (Answer) TableName() string {
	return "answers"
}

func (a *Answer) FillSelected() {
	a.SelectedOptionIDs = make([]uint, 0, len(a.Selections))
	for _, s := range a.Selections {
		a.SelectedOptionIDs = append(a.SelectedOptionIDs, s.OptionID)
	}
}

type AnswerSelection struct {
	AnswerID uint `gorm:"primaryKey;autoIncrement:false" json:"answerId"`
	OptionID uint `gorm:"primaryKey;autoIncrement:false" json:"optionId"`
}

func (AnswerSelection) TableName() string {
	return "answer_selections"
}
