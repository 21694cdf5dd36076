package pagination

import "gorm.io/gorm"

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageRequest holds offset pagination parameters parsed from query strings.
type PageRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"pageSize" binding:"omitempty,min=1,max=100"`
}

// Defaults fills in default values when page or pageSize are not provided.
func (p *PageRequest) Defaults() {
	if p.Page <= 0 {
		p.Page = DefaultPage
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
}

// Offset returns the SQL OFFSET for the current page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Page is a single window of results. Pagination is offset-only: there is no
// total count and no cursor.
type Page[T any] struct {
	Data     []T `json:"data"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// NewPage creates a Page, normalising a nil slice to an empty one.
func NewPage[T any](data []T, req PageRequest) Page[T] {
	if data == nil {
		data = []T{}
	}
	return Page[T]{Data: data, Page: req.Page, PageSize: req.PageSize}
}

// Paginate returns a GORM scope that applies OFFSET and LIMIT for the given page request.
func Paginate(req PageRequest) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(req.Offset()).Limit(req.PageSize)
	}
}
