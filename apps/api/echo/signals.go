package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/signal"
)

type signalApi struct {
	svc *signal.Service
}

func registerSignalAPI(g *echo.Group, crp echo.MiddlewareFunc, svc *signal.Service) {
	api := signalApi{svc: svc}

	sg := g.Group("/signals", crp)
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
}

func (api *signalApi) query(ctx echo.Context) error {
	filter := new(signal.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []signal.Signal{})
	}
	if v := ctx.QueryParam("flagged"); v != "" {
		flagged, err := strconv.ParseBool(v)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "flagged", Error: "flagged must be a boolean"})
		}
		filter.IsFlagged = &flagged
	}
	ordering := new(Ordering)
	if err := ordering.Bind(ctx); err != nil {
		return err
	}

	sigs, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying signals")
	}
	return ctx.JSON(http.StatusOK, sigs)
}

func (api *signalApi) retrieve(ctx echo.Context) error {
	sig, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting signal")
	}
	return ctx.JSON(http.StatusOK, sig)
}
