package echoapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core/score"
)

type scoreApi struct {
	svc      *score.Service
	validate *validator.Validate
}

func registerScoreAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *score.Service, validate *validator.Validate) {
	api := scoreApi{svc: svc, validate: validate}

	sg := g.Group("/scores", jwt)
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.PUT("/:id", api.update)
}

func (api *scoreApi) create(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data score.NewScore
	if err = bindAndValidate(ctx, api.validate, &data); err != nil {
		return err
	}

	res, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating score")
	}
	return respondCreated(ctx, "score recorded", res)
}

func (api *scoreApi) update(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data score.UpdateScore
	if err = bindAndValidate(ctx, api.validate, &data); err != nil {
		return err
	}

	s, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating score")
	}
	return respondOK(ctx, "score updated", s)
}

func (api *scoreApi) query(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(score.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}

	scores, err := api.svc.Query(ctx.Request().Context(), actor, filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying scores")
	}
	return respondList(ctx, scores)
}
