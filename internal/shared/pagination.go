package shared

import "math"

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

// ClampPage normalises limit and offset from a query string.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// NewPagination computes pagination metadata for a limit/offset window.
func NewPagination(limit, offset, total int) Pagination {
	limit, offset = ClampPage(limit, offset)
	return Pagination{
		Limit:      limit,
		Offset:     offset,
		Total:      total,
		Page:       offset/limit + 1,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}
}
