package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
)

func TestFromRequest(t *testing.T) {
	p, err := FromRequest(httptest.NewRequest("GET", "/stock", nil))
	require.NoError(t, err)
	assert.Equal(t, Params{Page: 1, PerPage: DefaultPerPage}, p)

	p, err = FromRequest(httptest.NewRequest("GET", "/stock?page=3&per_page=10", nil))
	require.NoError(t, err)
	assert.Equal(t, 20, p.Offset())

	for _, q := range []string{"page=0", "page=abc", "per_page=0", "per_page=101"} {
		_, err := FromRequest(httptest.NewRequest("GET", "/stock?"+q, nil))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, q)
	}
}

func TestWindow(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, Window(items, Params{Page: 2, PerPage: 2}))
	assert.Equal(t, []int{5}, Window(items, Params{Page: 3, PerPage: 2}))
	assert.Empty(t, Window(items, Params{Page: 4, PerPage: 2}))
}
