package util

// 分页默认值
const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)
