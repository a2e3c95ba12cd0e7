package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/core/reflection"
)

type reflectionApi struct {
	svc *reflection.Service
}

func registerReflectionAPI(g *echo.Group, crp echo.MiddlewareFunc, svc *reflection.Service) {
	api := reflectionApi{svc: svc}

	// any role
	g.POST("/reflections", api.create)

	// CRP only
	g.GET("/reflections", api.query, crp)
	g.POST("/reviews", api.createReview, crp)
	g.GET("/reviews", api.queryReviews, crp)
}

func (api *reflectionApi) create(ctx echo.Context) error {
	var data reflection.NewReflection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReflection")
	}

	refl, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting reflection")
	}
	return ctx.JSON(http.StatusCreated, refl)
}

func (api *reflectionApi) query(ctx echo.Context) error {
	filter := new(reflection.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []reflection.Reflection{})
	}

	refls, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying reflections")
	}
	return ctx.JSON(http.StatusOK, refls)
}

func (api *reflectionApi) createReview(ctx echo.Context) error {
	var data reflection.NewReview
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReview")
	}

	rev, err := api.svc.SubmitReview(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting review")
	}
	return ctx.JSON(http.StatusCreated, rev)
}

func (api *reflectionApi) queryReviews(ctx echo.Context) error {
	filter := new(reflection.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []reflection.Review{})
	}

	revs, err := api.svc.QueryReviews(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying reviews")
	}
	return ctx.JSON(http.StatusOK, revs)
}
