package echoapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core/classroom"
	"github.com/trezcool/dabestan/core/user"
)

type classRoomApi struct {
	svc      *classroom.Service
	validate *validator.Validate
}

func registerClassRoomAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *classroom.Service, validate *validator.Validate) {
	api := classRoomApi{svc: svc, validate: validate}

	cg := g.Group("/classrooms", jwt)
	cg.POST("", api.create)
	cg.GET("", api.query, roleMiddleware(true, user.RoleAdmin, user.RoleTeacher))
	cg.GET("/:id/students", api.students, roleMiddleware(true, user.RoleAdmin, user.RoleTeacher))
	cg.POST("/:id/students", api.enroll)
}

func (api *classRoomApi) create(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data classroom.NewClassRoom
	if err = bindAndValidate(ctx, api.validate, &data); err != nil {
		return err
	}

	cr, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating classroom")
	}
	return respondCreated(ctx, "classroom created", cr)
}

func (api *classRoomApi) query(ctx echo.Context) error {
	crs, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying classrooms")
	}
	return respondList(ctx, crs)
}

func (api *classRoomApi) students(ctx echo.Context) error {
	ids, err := api.svc.Students(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying classroom students")
	}
	return respondList(ctx, ids)
}

func (api *classRoomApi) enroll(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data classroom.Enrollment
	if err = bindAndValidate(ctx, api.validate, &data); err != nil {
		return err
	}

	if err = api.svc.Enroll(ctx.Request().Context(), actor, ctx.Param("id"), data); err != nil {
		return errors.Wrap(err, "enrolling students")
	}
	return respondOK(ctx, "students enrolled", data.StudentIDs)
}
