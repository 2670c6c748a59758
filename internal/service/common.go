package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"studybuddy_backend/internal/repository"
	"studybuddy_backend/internal/util"
	"studybuddy_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// notFound 把 gorm 的未找到转换为业务错误
func notFound(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", util.ErrValidation, fmt.Sprintf(format, args...))
}

// invalidateStats 缓存失败不影响已提交的写操作，只记录日志
func invalidateStats(cache *repository.StatsCache, quizID uint) {
	if err := cache.Invalidate(quizID); err != nil {
		logger.Log.Warn("failed to invalidate quiz stats", zap.Uint("quizID", quizID), zap.Error(err))
	}
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(title string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "quiz"
	}
	if len(s) > 200 {
		s = strings.TrimRight(s[:200], "-")
	}
	return s
}

func positiveOrNil(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	n := *v
	return &n
}
