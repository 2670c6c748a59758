package util

import (
	"errors"
	"studybuddy_backend/internal/grading"
)

var (
	ErrUserNotFound    = errors.New("用户不存在")
	ErrEmailRegistered = errors.New("该邮箱已被注册")
	ErrInvalidLogin    = errors.New("invalid email or password")

	ErrForbidden = errors.New("forbidden")

	ErrAttemptFinalized = errors.New("attempt is already finalized")
	ErrAlreadyFinalized = errors.New("attempt has already been finalized")
	ErrNotInProgress    = errors.New("attempt is not in progress")

	ErrInvalidSubmission = grading.ErrInvalidSubmission
	ErrQuestionMismatch  = errors.New("question does not belong to this quiz")
	ErrValidation        = errors.New("validation failed")

	ErrAttemptLimitExceeded = errors.New("maximum attempts reached")
	ErrBusy                 = errors.New("another request is starting this attempt, please retry")

	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrOptionNotFound   = errors.New("option not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindAuthorization
	KindState
	KindValidation
	KindLimit
	KindNotFound
	KindConflict
	KindUnauthenticated
)

var kindNames = map[ErrorKind]string{
	KindInternal:        "internal",
	KindAuthorization:   "forbidden",
	KindState:           "invalid_state",
	KindValidation:      "validation",
	KindLimit:           "attempt_limit",
	KindNotFound:        "not_found",
	KindConflict:        "conflict",
	KindUnauthenticated: "unauthenticated",
}

func (k ErrorKind) String() string {
	return kindNames[k]
}

// KindOf 按错误类别归类，controller 据此选择 HTTP 状态码
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrForbidden):
		return KindAuthorization
	case errors.Is(err, ErrAttemptFinalized),
		errors.Is(err, ErrAlreadyFinalized),
		errors.Is(err, ErrNotInProgress):
		return KindState
	case errors.Is(err, ErrInvalidSubmission),
		errors.Is(err, ErrQuestionMismatch),
		errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrAttemptLimitExceeded):
		return KindLimit
	case errors.Is(err, ErrQuizNotFound),
		errors.Is(err, ErrQuestionNotFound),
		errors.Is(err, ErrOptionNotFound),
		errors.Is(err, ErrAttemptNotFound),
		errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrEmailRegistered), errors.Is(err, ErrBusy):
		return KindConflict
	case errors.Is(err, ErrInvalidLogin):
		return KindUnauthenticated
	}
	return KindInternal
}
