package pagination

import (
	"fmt"
	"net/http"
	"strconv"

	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Offset returns the row offset of the first item on the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// FromRequest reads page and per_page. Missing values fall back to defaults;
// malformed or out-of-range values are an invalid-input error.
func FromRequest(r *http.Request) (Params, error) {
	p := Params{Page: 1, PerPage: DefaultPerPage}
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, apperrors.InvalidInput("page must be a positive integer").WithDetail("page", v)
		}
		p.Page = n
	}
	if v := q.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxPerPage {
			return p, apperrors.InvalidInput(fmt.Sprintf("per_page must be between 1 and %d", MaxPerPage)).WithDetail("per_page", v)
		}
		p.PerPage = n
	}
	return p, nil
}

// Window slices items to the requested page.
func Window[T any](items []T, p Params) []T {
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := min(start+p.PerPage, len(items))
	return items[start:end]
}
