package utils

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	pkgutils "github.com/wso2/ob-consent-engine/pkg/utils"
)

// PaginationParams holds pagination parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// NewPaginationParams creates a new pagination params with defaults
func NewPaginationParams(limit, offset int) PaginationParams {
	return PaginationParams{
		Limit:  pkgutils.ValidateLimit(limit),
		Offset: pkgutils.ValidateOffset(offset),
	}
}

// ParsePagination reads the limit and offset query parameters
func ParsePagination(c *gin.Context) (PaginationParams, error) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return PaginationParams{}, err
	}
	offset, err := intQuery(c, "offset")
	if err != nil {
		return PaginationParams{}, err
	}
	return NewPaginationParams(limit, offset), nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}
