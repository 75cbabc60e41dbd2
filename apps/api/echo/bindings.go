package echoapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
)

var orderingParam = "ordering"

type (
	Ordering struct {
		Orderings []core.DBOrdering
	}

	// DataResponse is the body of successful writes.
	DataResponse struct {
		Detail string      `json:"detail"`
		Data   interface{} `json:"data"`
	}

	// ListResponse is the body of every listing.
	ListResponse struct {
		Count   int         `json:"count"`
		Results interface{} `json:"results"`
	}
)

// Bind reads `?ordering=-date,status` into orderings. Unknown fields are ignored by the repositories.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

func bindOrdering(ctx echo.Context) []core.DBOrdering {
	ord := new(Ordering)
	ord.Bind(ctx)
	return ord.Orderings
}

// bindAndValidate binds the request into data then runs its `validate` tags.
func bindAndValidate(ctx echo.Context, validate *validator.Validate, data interface{}) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrap(err, "binding request")
	}
	return validate.Struct(data)
}

func respondCreated(ctx echo.Context, detail string, data interface{}) error {
	return ctx.JSON(http.StatusCreated, DataResponse{Detail: detail, Data: data})
}

func respondOK(ctx echo.Context, detail string, data interface{}) error {
	return ctx.JSON(http.StatusOK, DataResponse{Detail: detail, Data: data})
}

func respondList[T any](ctx echo.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	return ctx.JSON(http.StatusOK, ListResponse{Count: len(items), Results: items})
}
