package middleware

import (
	"github.com/labstack/echo/v4"
)

// errorResponse writes the JSON error body shared by middleware that answers
// a request itself. It is a no-op once the response has been committed.
func errorResponse(c echo.Context, status int, code, message string) error {
	if c.Response().Committed {
		return nil
	}
	return c.JSON(status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
