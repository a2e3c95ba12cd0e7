package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/core/card"
)

type cardApi struct {
	svc       *card.Service
	versioner *card.Versioner
}

func registerCardAPI(g *echo.Group, crp echo.MiddlewareFunc, svc *card.Service, versioner *card.Versioner) {
	api := cardApi{svc: svc, versioner: versioner}

	cg := g.Group("/cards")
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
	cg.POST("/:id/versions", api.createVersion, crp)
}

func (api *cardApi) query(ctx echo.Context) error {
	filter := new(card.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []card.Card{})
	}
	ordering := new(Ordering)
	if err := ordering.Bind(ctx); err != nil {
		return err
	}

	cards, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying cards")
	}
	return ctx.JSON(http.StatusOK, cards)
}

func (api *cardApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting card")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *cardApi) createVersion(ctx echo.Context) error {
	var data card.Revision
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Revision")
	}

	res, err := api.versioner.Run(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}
