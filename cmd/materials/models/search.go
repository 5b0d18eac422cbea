package models

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SearchCondition filters POST /api/v1/materials/search
type SearchCondition struct {
	Tags  []string `json:"tags"`
	Query string   `json:"query"`
	Type  string   `json:"type"`
	Page  int      `json:"page"`
	Size  int      `json:"size"`
}

// Normalize fills in paging defaults
func (c *SearchCondition) Normalize() {
	if c.Page < 1 {
		c.Page = 1
	}
	if c.Size < 1 {
		c.Size = DefaultPageSize
	}
	if c.Size > MaxPageSize {
		c.Size = MaxPageSize
	}
}

// Offset returns the row offset of the requested page
func (c SearchCondition) Offset() int {
	return (c.Page - 1) * c.Size
}

// PageResult is one page of records
type PageResult[T any] struct {
	Page    int   `json:"page"`
	Size    int   `json:"size"`
	Total   int64 `json:"total"`
	Records []T   `json:"records"`
}
