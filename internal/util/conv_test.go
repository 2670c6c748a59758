package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 66.7, Percentage(2, 3))
	assert.Equal(t, 100.0, Percentage(4, 4))
	assert.Equal(t, 0.0, Percentage(0, 5))
	assert.Equal(t, 0.0, Percentage(3, 0))
	assert.Equal(t, 33.3, Percentage(1, 3))
}

func TestPagination(t *testing.T) {
	page, limit, offset := Pagination(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultPageSize, limit)
	assert.Equal(t, 0, offset)

	page, limit, offset = Pagination(3, 500)
	assert.Equal(t, 3, page)
	assert.Equal(t, MaxPageSize, limit)
	assert.Equal(t, 2*MaxPageSize, offset)
}

func TestMustParseUint(t *testing.T) {
	assert.Equal(t, uint(42), MustParseUint("42"))
	assert.Equal(t, uint(0), MustParseUint("abc"))
}
