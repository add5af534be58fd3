package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	// DefaultLimit is the page size used by every list view.
	DefaultLimit = 10
	MaxLimit     = 100
)

// Params holds the page window requested from the backend.
type Params struct {
	Page  int
	Limit int
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{Page: page, Limit: limit}
}

// Values encodes the params as backend query parameters.
func (p Params) Values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.normalizedPage()))
	v.Set("limit", strconv.Itoa(p.normalizedLimit()))
	return v
}

// Offset returns the zero-based index of the first item on the page.
func (p Params) Offset() int {
	return (p.normalizedPage() - 1) * p.normalizedLimit()
}

func (p Params) normalizedPage() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

func (p Params) normalizedLimit() int {
	if p.Limit <= 0 {
		return DefaultLimit
	}
	return p.Limit
}

// Meta is the pagination metadata returned alongside a list.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// TotalPages returns the number of pages needed for total items, never less
// than one.
func TotalPages(total, limit int) int {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

// HasNext returns true if there are more pages after the current one.
func (m Meta) HasNext() bool {
	return m.Page < m.TotalPages
}

// HasPrevious returns true if there are pages before the current one.
func (m Meta) HasPrevious() bool {
	return m.Page > 1
}

// Window returns up to size page numbers centred on the current page, the way
// a pager control lays out its buttons.
func (m Meta) Window(size int) []int {
	total := m.TotalPages
	if total < 1 {
		total = 1
	}
	if size <= 0 || size > total {
		size = total
	}
	start := m.Page - size/2
	if start < 1 {
		start = 1
	}
	if start+size-1 > total {
		start = total - size + 1
	}
	pages := make([]int, 0, size)
	for i := 0; i < size; i++ {
		pages = append(pages, start+i)
	}
	return pages
}
