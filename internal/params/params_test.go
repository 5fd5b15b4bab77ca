package params

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Pagination
	}{
		{"defaults", "", Pagination{Limit: DefaultLimit, Page: 1}},
		{"explicit", "limit=10&page=3", Pagination{Limit: 10, Page: 3, Offset: 20}},
		{"clamped", "limit=1000", Pagination{Limit: MaxLimit, Page: 1}},
		{"garbage", "limit=abc&page=-2", Pagination{Limit: DefaultLimit, Page: 1}},
		{"zero limit", "limit=0&page=2", Pagination{Limit: DefaultLimit, Page: 2, Offset: DefaultLimit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, ParsePagination(q))
		})
	}
}

func TestComputeMeta(t *testing.T) {
	p := Pagination{Limit: 20, Page: 2, Offset: 20}
	p.ComputeMeta(45)

	assert.Equal(t, 45, p.Total)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasPrev)
	assert.True(t, p.HasNext)
}
