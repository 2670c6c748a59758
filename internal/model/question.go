package model

import "studybuddy_backend/internal/grading"

// swagger:model Question
type Question struct {
	BaseModel
	QuizID      uint         `gorm:"index;not null" json:"quizId"`
	Prompt      string       `gorm:"type:text;not null" json:"prompt"`
	Type        grading.Type `gorm:"size:20;not null" json:"type"`
	Points      int          `gorm:"not null;default:1" json:"points"`
	Position    int          `gorm:"not null;default:0" json:"position"`
	Explanation string       `gorm:"type:text" json:"explanation"`
	// CanonicalAnswer 仅填空题使用
	CanonicalAnswer string    `gorm:"size:255" json:"canonicalAnswer,omitempty"`
	Options         []*Option `gorm:"foreignKey:QuestionID" json:"options"`
}

func (Question) TableName() string {
	return "questions"
}

// GradingView 转换为评分器使用的结构
func (q *Question) GradingView() grading.Question {
	gq := grading.Question{
		ID:              q.ID,
		Type:            q.Type,
		Points:          q.Points,
		CanonicalAnswer: q.CanonicalAnswer,
		Options:         make([]grading.Option, 0, len(q.Options)),
	}
	for _, o := range q.Options {
		gq.Options = append(gq.Options, grading.Option{ID: o.ID, IsCorrect: o.IsCorrect})
	}
	return gq
}

// swagger:model Option
type Option struct {
	BaseModel
	QuestionID  uint   `gorm:"index;not null" json:"questionId"`
	Text        string `gorm:"type:text;not null" json:"text"`
	IsCorrect   bool   `gorm:"not null;default:false" json:"isCorrect"`
	Position    int    `gorm:"not null;default:0" json:"position"`
	Explanation string `gorm:"type:text" json:"explanation,omitempty"`
}

func (Option) TableName() string {
	return "options"
}
