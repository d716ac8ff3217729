package domain

const (
	// MaxPageSize bounds every paginated request.
	MaxPageSize = 200
)

// Pagination describes one page of a larger result set. Page numbers are 1-based.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Page is the pagination envelope returned by paginated reads.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// ValidatePageRequest rejects page < 1 and page sizes outside [1, MaxPageSize].
func ValidatePageRequest(page, pageSize int) error {
	var errs []FieldError
	if page < 1 {
		errs = append(errs, FieldError{Field: "page", Message: "must be >= 1"})
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		errs = append(errs, FieldError{Field: "pageSize", Message: "must be between 1 and 200"})
	}
	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

// NewPagination computes totalPages = ceil(total/pageSize) and clamps page into
// [1, max(totalPages, 1)]. pageSize must already be validated.
func NewPagination(page, pageSize, total int) Pagination {
	totalPages := 0
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	upper := max(totalPages, 1)
	page = min(max(page, 1), upper)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}

// Offset returns the row offset of the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}
