package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core/gamification"
	"github.com/trezcool/dabestan/services/report"
)

type gamificationApi struct {
	svc      *gamification.Service
	reports  *reportsvc.Service
	validate *validator.Validate
}

func registerGamificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *gamification.Service, reports *reportsvc.Service, validate *validator.Validate) {
	api := gamificationApi{svc: svc, reports: reports, validate: validate}

	gg := g.Group("/gamification", jwt)

	gg.GET("/profiles", api.queryProfiles)
	gg.GET("/profiles/best", api.bestStudents)
	gg.POST("/profiles/recalculate", api.recalculateAll, adminMiddleware())
	gg.GET("/profiles/:student_id/events", api.queryEvents)
	gg.POST("/profiles/:student_id/recalculate", api.recalculate)

	gg.GET("/event-types", api.queryEventTypes)
	gg.PUT("/event-types", api.saveEventType)

	gg.GET("/levels", api.queryThresholds)
	gg.PUT("/levels", api.setThreshold)
	gg.DELETE("/levels/:level", api.deleteThreshold)

	gg.GET("/leaderboard/export", api.exportLeaderboard, adminMiddleware())
}

// Profiles

func (api *gamificationApi) queryProfiles(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(gamification.ProfileFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to ProfileFilter")
	}

	profiles, err := api.svc.QueryProfiles(ctx.Request().Context(), actor, filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying profiles")
	}
	return respondList(ctx, profiles)
}

func (api *gamificationApi) bestStudents(ctx echo.Context) error {
	profiles, err := api.svc.BestStudents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying best students")
	}
	return respondList(ctx, profiles)
}

func (api *gamificationApi) queryEvents(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	events, err := api.svc.QueryEvents(ctx.Request().Context(), actor, ctx.Param("student_id"))
	if err != nil {
		return errors.Wrap(err, "querying student events")
	}
	return respondList(ctx, events)
}

func (api *gamificationApi) recalculate(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.RecalculateStudent(ctx.Request().Context(), actor, ctx.Param("student_id"))
	if err != nil {
		return errors.Wrap(err, "recalculating profile")
	}
	return respondOK(ctx, "profile recalculated", res.Profile)
}

func (api *gamificationApi) recalculateAll(ctx echo.Context) error {
	n, err := api.svc.RecalculateAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "recalculating profiles")
	}
	return respondOK(ctx, fmt.Sprintf("%d profiles recalculated", n), n)
}

func (api *gamificationApi) exportLeaderboard(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err = api.reports.ExportLeaderboard(ctx.Request().Context(), actor, &buf); err != nil {
		return errors.Wrap(err, "exporting leaderboard")
	}
	return sendXLSX(ctx, "leaderboard", buf.Bytes())
}

// Catalog

func (api *gamificationApi) queryEventTypes(ctx echo.Context) error {
	ets, err := api.svc.EventTypes(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying event types")
	}
	return respondList(ctx, ets)
}

func (api *gamificationApi) saveEventType(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data gamification.UpdateEventType
	if err = bindAndValidate(ctx, api.validate, &data); err != nil {
		return err
	}

	et, err := api.svc.SaveEventType(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "saving event type")
	}
	return respondOK(ctx, "event type saved", et)
}

func (api *gamificationApi) queryThresholds(ctx echo.Context) error {
	ths, err := api.svc.Thresholds(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying level thresholds")
	}
	return respondList(ctx, ths)
}

func (api *gamificationApi) setThreshold(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data gamification.LevelThreshold
	if err = bindAndValidate(ctx, api.validate, &data); err != nil {
		return err
	}

	if err = api.svc.SetThreshold(ctx.Request().Context(), actor, data); err != nil {
		return errors.Wrap(err, "setting level threshold")
	}
	return respondOK(ctx, "level threshold saved", data)
}

func (api *gamificationApi) deleteThreshold(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	level, err := strconv.Atoi(ctx.Param("level"))
	if err != nil {
		return errHttpNotFound
	}
	if err = api.svc.DeleteThreshold(ctx.Request().Context(), actor, level); err != nil {
		return errors.Wrap(err, "deleting level threshold")
	}
	return ctx.NoContent(http.StatusNoContent)
}
