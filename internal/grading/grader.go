// Package grading decides correctness and awarded points for a single
// question submission. It has no persistence dependencies; callers map their
// stored questions into Question before grading.
package grading

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Type string

const (
	TypeSingle         Type = "single"
	TypeMultiple       Type = "multiple"
	TypeTrueFalse      Type = "true_false"
	TypeIdentification Type = "identification"
)

func (t Type) Valid() bool {
	switch t {
	case TypeSingle, TypeMultiple, TypeTrueFalse, TypeIdentification:
		return true
	}
	return false
}

// SingleCorrect reports whether at most one option may be flagged correct.
func (t Type) SingleCorrect() bool {
	return t == TypeSingle || t == TypeTrueFalse
}

func (t Type) OptionBased() bool {
	return t != TypeIdentification
}

var ErrInvalidSubmission = errors.New("invalid submission")

type Option struct {
	ID        uint
	IsCorrect bool
}

// Question is the minimal view of a question needed for grading.
type Question struct {
	ID              uint
	Type            Type
	Points          int
	Options         []Option
	CanonicalAnswer string
}

type Selection struct {
	OptionIDs []uint
	Text      string
}

func (s Selection) Empty() bool {
	return len(s.OptionIDs) == 0 && strings.TrimSpace(s.Text) == ""
}

type Result struct {
	IsCorrect     bool
	PointsAwarded int
}

// Normalize drops duplicate option ids, keeping first-seen order.
func Normalize(sel Selection) Selection {
	if len(sel.OptionIDs) == 0 {
		return sel
	}
	seen := make(map[uint]struct{}, len(sel.OptionIDs))
	ids := make([]uint, 0, len(sel.OptionIDs))
	for _, id := range sel.OptionIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return Selection{OptionIDs: ids, Text: sel.Text}
}

// NormalizeText is the identification comparison form: trimmed and lower-cased.
func NormalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidSubmission, fmt.Sprintf(format, args...))
}

// Validate checks the shape of a submission against the question. Selection
// should already be normalized.
func Validate(q Question, sel Selection) error {
	switch q.Type {
	case TypeIdentification:
		if strings.TrimSpace(sel.Text) == "" {
			return invalid("an answer is required for this question")
		}
		return nil
	case TypeSingle, TypeTrueFalse:
		if len(sel.OptionIDs) != 1 {
			return invalid("exactly one option must be selected for this question")
		}
	case TypeMultiple:
		if len(sel.OptionIDs) < 1 {
			return invalid("select at least one option for this question")
		}
	default:
		return invalid("unsupported question type %q", q.Type)
	}

	allowed := make(map[uint]struct{}, len(q.Options))
	for _, o := range q.Options {
		allowed[o.ID] = struct{}{}
	}
	for _, id := range sel.OptionIDs {
		if _, ok := allowed[id]; !ok {
			return invalid("option %d does not belong to this question", id)
		}
	}
	return nil
}

// Grade is all-or-nothing: an option-based answer is correct only when the
// submitted set equals the correct set exactly.
func Grade(q Question, sel Selection) Result {
	var correct bool
	if q.Type == TypeIdentification {
		want := NormalizeText(q.CanonicalAnswer)
		correct = want != "" && NormalizeText(sel.Text) == want
	} else {
		correct = sameSet(correctIDs(q), Normalize(sel).OptionIDs)
	}

	if !correct {
		return Result{}
	}
	return Result{IsCorrect: true, PointsAwarded: q.Points}
}

func correctIDs(q Question) []uint {
	ids := make([]uint, 0, len(q.Options))
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// sameSet: 空提交永远不算正确
func sameSet(want, got []uint) bool {
	if len(got) == 0 || len(want) != len(got) {
		return false
	}
	a := append([]uint(nil), want...)
	b := append([]uint(nil), got...)
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
