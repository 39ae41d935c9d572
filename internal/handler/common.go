package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// paginatedResponse is the envelope every list endpoint returns.
type paginatedResponse struct {
	Data         any `json:"data"`
	TotalCount   int `json:"total_count"`
	Page         int `json:"page"`
	ItemsPerPage int `json:"items_per_page"`
}

// pageParams reads ?page and ?items_per_page with sane bounds and returns
// the SQL offset to use.
func pageParams(c echo.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(c.QueryParam("items_per_page"))
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage, (page - 1) * perPage
}
