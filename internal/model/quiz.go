package model

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate:
		return true
	}
	return false
}

// swagger:model Quiz
type Quiz struct {
	BaseModel
	UserID           uint       `gorm:"index;not null" json:"userId"`
	Author           *User      `gorm:"foreignKey:UserID" json:"author,omitempty"`
	Title            string     `gorm:"size:255;not null" json:"title"`
	Slug             string     `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Description      string     `gorm:"type:text" json:"description"`
	Visibility       Visibility `gorm:"size:20;not null;default:'public'" json:"visibility"`
	TimeLimitSeconds *int       `json:"timeLimitSeconds"`
	MaxAttempts      *int       `json:"maxAttempts"`
	ShuffleQuestions bool       `json:"shuffleQuestions"`
	ShuffleOptions   bool       `json:"shuffleOptions"`
	// TotalPoints 缓存当前题目分值之和，由题目增删改时同事务重算
	TotalPoints int         `gorm:"not null;default:0" json:"totalPoints"`
	Questions   []*Question `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// AttemptLimit 返回 0 表示不限次数
func (q *Quiz) AttemptLimit() int {
	if q.MaxAttempts == nil || *q.MaxAttempts <= 0 {
		return 0
	}
	return *q.MaxAttempts
}

func (q *Quiz) IsPrivate() bool {
	return q.Visibility == VisibilityPrivate
}

func (q *Quiz) OwnedBy(userID uint) bool {
	return q.UserID == userID
}
