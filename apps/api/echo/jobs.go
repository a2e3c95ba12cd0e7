package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/apps/jobs"
)

func registerJobAPI(g *echo.Group, crp echo.MiddlewareFunc, runner *jobs.Runner) {
	jg := g.Group("/jobs", crp)
	for _, name := range jobs.Names {
		jg.POST("/"+name, runJob(runner, name))
	}
}

func runJob(runner *jobs.Runner, name string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		res, err := runner.Run(ctx.Request().Context(), name)
		if err != nil {
			return errors.Wrapf(err, "running job %s", name)
		}
		return ctx.JSON(http.StatusOK, res)
	}
}
