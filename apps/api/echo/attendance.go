package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/attendance"
	"github.com/trezcool/dabestan/services/report"
)

type attendanceApi struct {
	svc      *attendance.Service
	reports  *reportsvc.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *attendance.Service, reports *reportsvc.Service, validate *validator.Validate) {
	api := attendanceApi{svc: svc, reports: reports, validate: validate}

	ag := g.Group("/attendance", jwt)

	ag.POST("/requests", api.submitRequest)
	ag.GET("/requests", api.queryRequests)
	ag.POST("/requests/:id/review", api.review)
	ag.GET("/reviews", api.queryReviews)

	ag.GET("/records", api.queryRecords)
	ag.POST("/records", api.createRecord)
	ag.GET("/records/export", api.exportRecords, adminMiddleware())
	ag.POST("/records/import", api.importRecords, adminMiddleware())
	ag.PUT("/records/:id", api.updateRecord)
	ag.DELETE("/records/:id", api.deleteRecord)
}

// Requests & reviews

func (api *attendanceApi) submitRequest(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data attendance.NewRequest
	if err = bindAndValidate(ctx, api.validate, &data); err != nil {
		return err
	}

	req, err := api.svc.SubmitRequest(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "submitting attendance request")
	}
	return respondCreated(ctx, "attendance request submitted", req)
}

func (api *attendanceApi) queryRequests(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(attendance.RequestFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to RequestFilter")
	}

	reqs, err := api.svc.QueryRequests(ctx.Request().Context(), actor, filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying attendance requests")
	}
	return respondList(ctx, reqs)
}

func (api *attendanceApi) review(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data attendance.Decision
	if err = bindAndValidate(ctx, api.validate, &data); err != nil {
		return err
	}

	res, err := api.svc.Review(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "reviewing attendance request")
	}
	return respondOK(ctx, fmt.Sprintf("attendance request %s", res.Review.Status), res)
}

func (api *attendanceApi) queryReviews(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(attendance.ReviewFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to ReviewFilter")
	}

	revs, err := api.svc.QueryReviews(ctx.Request().Context(), actor, filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying attendance reviews")
	}
	return respondList(ctx, revs)
}

// Records

func (api *attendanceApi) queryRecords(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(attendance.RecordFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to RecordFilter")
	}

	recs, err := api.svc.QueryRecords(ctx.Request().Context(), actor, filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying attendance records")
	}
	return respondList(ctx, recs)
}

func (api *attendanceApi) createRecord(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data attendance.NewRecord
	if err = bindAndValidate(ctx, api.validate, &data); err != nil {
		return err
	}

	rec, err := api.svc.CreateRecord(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating attendance record")
	}
	return respondCreated(ctx, "attendance record created", rec)
}

func (api *attendanceApi) updateRecord(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	var data attendance.UpdateRecord
	if err = bindAndValidate(ctx, api.validate, &data); err != nil {
		return err
	}

	rec, err := api.svc.UpdateRecord(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating attendance record")
	}
	return respondOK(ctx, "attendance record updated", rec)
}

func (api *attendanceApi) deleteRecord(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteRecord(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting attendance record")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *attendanceApi) exportRecords(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	filter := new(attendance.RecordFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to RecordFilter")
	}

	var buf bytes.Buffer
	if err = api.reports.ExportRecords(ctx.Request().Context(), actor, filter, &buf); err != nil {
		return errors.Wrap(err, "exporting attendance records")
	}
	return sendXLSX(ctx, "attendance", buf.Bytes())
}

func (api *attendanceApi) importRecords(ctx echo.Context) error {
	actor, err := getActor(ctx)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(errors.New("file is required"), core.FieldError{Field: "file", Error: "this field is required"})
	}
	file, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer file.Close()

	res, err := api.reports.ImportRecords(ctx.Request().Context(), actor, fh.Filename, file)
	if err != nil {
		return errors.Wrap(err, "importing attendance records")
	}
	return respondOK(ctx, fmt.Sprintf("%d of %d attendance records imported", res.Created, res.Rows), res)
}

func sendXLSX(ctx echo.Context, name string, data []byte) error {
	filename := fmt.Sprintf("%s-%s.xlsx", name, core.Today(time.Now(), nil))
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, reportsvc.XLSXContentType, data)
}
