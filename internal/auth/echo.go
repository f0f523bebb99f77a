package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TokenQueryParam carries the JWT for WebSocket upgrades, where browsers cannot set headers.
const TokenQueryParam = "access_token"

// EchoMiddleware authenticates HTTP requests with the same JWTs as gRPC. Paths in
// allowUnauthenticated (route patterns, e.g. "/health") are passed through.
func EchoMiddleware(secret string, allowUnauthenticated ...string) echo.MiddlewareFunc {
	allow := allowSet(allowUnauthenticated)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := allow[c.Path()]; ok {
				return next(c)
			}
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				if tok := strings.TrimSpace(c.QueryParam(TokenQueryParam)); tok != "" {
					header = "Bearer " + tok
				}
			}
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization")
			}
			p, err := ParseBearer(header, secret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "auth error: "+err.Error())
			}
			req := c.Request()
			c.SetRequest(req.WithContext(WithPrincipal(req.Context(), p)))
			return next(c)
		}
	}
}
