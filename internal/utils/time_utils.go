package utils

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	pkgutils "github.com/wso2/ob-consent-engine/pkg/utils"
)

// ParseTimeQuery reads a time filter as epoch millis. The value may be given
// in epoch seconds, epoch millis or ISO 8601. A missing value is zero.
func ParseTimeQuery(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%s must not be negative", name)
		}
		return pkgutils.ValidityToTime(n).UnixMilli(), nil
	}
	t, err := pkgutils.ParseTime(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be epoch time or ISO 8601", name)
	}
	return t.UnixMilli(), nil
}
