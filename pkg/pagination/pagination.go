package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultSize = 10
	MaxSize     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Page int
	Size int
}

// Parse normalises raw page/size query values. Unparseable or zero values
// fall back to the defaults; the rest are clamped to page >= 1 and 1 <= size <= MaxSize.
func Parse(page, size string) Params {
	p, _ := strconv.Atoi(page)
	if p < 1 {
		p = 1
	}

	s, _ := strconv.Atoi(size)
	if s == 0 {
		s = DefaultSize
	}
	if s > MaxSize {
		s = MaxSize
	}
	if s < 1 {
		s = 1
	}

	return Params{Page: p, Size: s}
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam("page"), c.QueryParam("size"))
}

// Skip is the number of rows before the current page.
func (p Params) Skip() int {
	return (p.Page - 1) * p.Size
}

// SQL returns the LIMIT and OFFSET clause for SQL queries.
func (p Params) SQL() string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Size, p.Skip())
}

// Response is the list envelope returned by every paginated endpoint.
type Response struct {
	Items       interface{} `json:"items"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
	Total       int         `json:"total"`
}

func NewResponse(items interface{}, total int, p Params) *Response {
	pages := 0
	if p.Size > 0 {
		pages = (total + p.Size - 1) / p.Size
	}
	return &Response{
		Items:       items,
		TotalPages:  pages,
		CurrentPage: p.Page,
		Total:       total,
	}
}
