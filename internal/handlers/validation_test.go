package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billcraft/billcraft/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBindAndValidate(t *testing.T) {
	type payload struct {
		Email string `json:"email" validate:"required,email"`
		Name  string `json:"name" validate:"required"`
	}

	run := func(body string) (*httptest.ResponseRecorder, bool) {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")

		var dest payload
		ok := bindAndValidate(c, &dest)
		return rec, ok
	}

	rec, ok := run(`{"email": "sam@example.com", "name": "Sam"}`)
	require.True(t, ok)
	assert.Empty(t, rec.Body.String(), "valid payloads write nothing")

	rec, ok = run(`{"email": "not-an-email"}`)
	require.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email must be a valid email address")
	assert.Contains(t, rec.Body.String(), "name is required")

	rec, ok = run(`{broken`)
	require.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON payload")
}

func TestListOptions(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=3&per_page=10&search=%20acme%20", nil)

	opts := listOptions(c)
	assert.Equal(t, 3, opts.Page)
	assert.Equal(t, 10, opts.PerPage)
	assert.Equal(t, "acme", opts.Search)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=junk", nil)
	opts = listOptions(c)
	assert.Equal(t, 1, opts.Page)
	assert.Equal(t, 25, opts.PerPage)
}

func TestListMeta(t *testing.T) {
	meta := listMeta(services.ListOptions{Page: 2, PerPage: 10}, 35)
	assert.Equal(t, 2, meta.Page)
	assert.Equal(t, 10, meta.PerPage)
	assert.Equal(t, 35, meta.Total)
	assert.Equal(t, 4, meta.TotalPages)

	meta = listMeta(services.ListOptions{}, 0)
	assert.Equal(t, 1, meta.Page)
	assert.Equal(t, 0, meta.TotalPages)
}
