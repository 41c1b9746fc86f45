package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// AdminToken gates the admin API on the shared operator token.
func AdminToken(token string) echo.MiddlewareFunc {
	return echomw.KeyAuthWithConfig(echomw.KeyAuthConfig{
		KeyLookup: "header:" + HeaderAdminToken,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		Validator: func(key string, c echo.Context) (bool, error) {
			return token != "" && subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
	})
}
