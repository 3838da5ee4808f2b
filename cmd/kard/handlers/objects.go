package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/opst/karfab/pkg/api/binding"
	apierr "github.com/opst/karfab/pkg/api/errors"
	"github.com/opst/karfab/pkg/api/types"
	xe "github.com/opst/karfab/pkg/errors"
)

func GetObjectHandler(c Cache, paramKey string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		l, err := paramLSID(ctx, paramKey)
		if err != nil {
			return err
		}
		obj, err := c.Get(ctx.Request().Context(), l)
		if err != nil {
			if xe.Is(err, xe.ErrNotFound) {
				return apierr.NotFound(apierr.WithSubject(l.String()))
			}
			if rejectedArchive(err) {
				return apierr.UnprocessableEntity(
					"object cannot be loaded", err, apierr.WithSubject(l.String()),
				)
			}
			return apierr.InternalServerError(err)
		}
		return ctx.JSON(http.StatusOK, binding.ComposeObject(obj))
	}
}

// OpenObjectHandler opens a window of the object.
//
// Objects which are indexed but cannot be opened are responded with 422 and opened = false.
func OpenObjectHandler(c Cache, paramKey string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		l, err := paramLSID(ctx, paramKey)
		if err != nil {
			return err
		}
		w, err := c.OpenWindow(ctx.Request().Context(), l)
		if err != nil {
			if xe.Is(err, xe.ErrNotFound) {
				return apierr.NotFound(apierr.WithSubject(l.String()))
			}
			ctx.Logger().Warnf("failed to open %s: %s", l, err)
			return ctx.JSON(
				http.StatusUnprocessableEntity,
				types.OpenResult{Opened: false, Reason: err.Error()},
			)
		}
		return ctx.JSON(
			http.StatusOK,
			types.OpenResult{Opened: true, Window: binding.ComposeWindow(w)},
		)
	}
}
