// Package response is the uniform JSON envelope for the HTTP surface.
// Success bodies carry code 0; error bodies mirror the HTTP status and carry
// a stable machine-readable reason.
package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	infraerrors "github.com/marketopshq/connecthub/internal/pkg/errors"
)

// Response is the envelope every endpoint writes.
type Response struct {
	Code     int               `json:"code"`
	Message  string            `json:"message"`
	Reason   string            `json:"reason,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Data     any               `json:"data,omitempty"`
}

// PaginatedData wraps list payloads with paging bookkeeping.
type PaginatedData struct {
	Items    any   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Pages    int   `json:"pages"`
}

// PaginationResult carries computed paging state from a repository query.
type PaginationResult struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Pages    int   `json:"pages"`
}

// Success writes a 200 with the given payload.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

// Created writes a 201 with the given payload.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "success", Data: data})
}

// Error writes a bare error without reason or metadata.
func Error(c *gin.Context, statusCode int, message string) {
	ErrorWithDetails(c, statusCode, message, "", nil)
}

// ErrorWithDetails writes a structured error body.
func ErrorWithDetails(c *gin.Context, statusCode int, message, reason string, metadata map[string]string) {
	c.JSON(statusCode, Response{
		Code:     statusCode,
		Message:  message,
		Reason:   reason,
		Metadata: metadata,
	})
}

// ErrorFrom writes err through the envelope and reports whether anything was
// written. Application errors keep their status, reason and metadata;
// anything else becomes an opaque 500 so internals never leak to clients.
func ErrorFrom(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	appErr := infraerrors.FromError(err)
	ErrorWithDetails(c, appErr.Code, appErr.Message, appErr.Reason, appErr.Metadata)
	return true
}

// BadRequest writes a 400.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized writes a 401.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// Forbidden writes a 403.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

// NotFound writes a 404.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// InternalError writes a 500.
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// Paginated writes a 200 carrying items plus paging computed from totals.
func Paginated(c *gin.Context, items any, total int64, page, pageSize int) {
	pages := 1
	if pageSize > 0 && total > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	Success(c, PaginatedData{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    pages,
	})
}

// PaginatedWithResult writes a 200 from a precomputed pagination result.
func PaginatedWithResult(c *gin.Context, items any, pagination *PaginationResult) {
	if pagination == nil {
		pagination = &PaginationResult{Page: 1, PageSize: 20, Pages: 1}
	}
	Success(c, PaginatedData{
		Items:    items,
		Total:    pagination.Total,
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
		Pages:    pagination.Pages,
	})
}

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 1000
)

// ParsePagination reads page/page_size (limit accepted as an alias) from the
// query string, falling back to defaults on anything non-numeric or out of
// range.
func ParsePagination(c *gin.Context) (page, pageSize int) {
	page = defaultPage
	pageSize = defaultPageSize

	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= maxPageSize {
		pageSize = v
	} else if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= maxPageSize {
		pageSize = v
	}
	return page, pageSize
}
