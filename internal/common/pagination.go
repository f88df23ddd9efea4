package common

import (
	"net/http"
	"strconv"
)

// Pagination holds pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Offset     int `json:"offset"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPagination derives page counts from the window and the total row count.
func NewPagination(page, perPage, offset, total int) Pagination {
	p := Pagination{Page: page, PerPage: perPage, Offset: offset, TotalItems: total}
	if perPage > 0 {
		p.TotalPages = (total + perPage - 1) / perPage
	}
	return p
}

// WriteList renders a list envelope and mirrors the total in X-Total-Count.
func WriteList(w http.ResponseWriter, data any, p Pagination) {
	w.Header().Set("X-Total-Count", strconv.Itoa(p.TotalItems))
	JSON(w, http.StatusOK, listEnvelope{Data: data, Pagination: p})
}
