package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"

	xhttp "AlphaPilot/pkg/http"
)

// BearerAuth guards operator routes with a static bearer token. Constant
// time comparison; an empty configured token disables the guard (dev only).
func BearerAuth(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			presented, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				return xhttp.UnauthorizedResponse(c, "invalid or missing token")
			}
			return next(c)
		}
	}
}
