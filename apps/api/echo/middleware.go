package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// crpMiddleware restricts a route to curriculum review panel members.
func crpMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, err := getContextPrincipal(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context principal")
			}
			if p.IsCRP() {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
