package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/opst/karfab/pkg/api/binding"
	apierr "github.com/opst/karfab/pkg/api/errors"
	"github.com/opst/karfab/pkg/api/types"
	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/workspace"
)

func ListWindowsHandler(ws *workspace.Workspace) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		windows := ws.List()
		resp := make([]*types.Window, 0, len(windows))
		for _, w := range windows {
			resp = append(resp, binding.ComposeWindow(w))
		}
		return ctx.JSON(http.StatusOK, resp)
	}
}

func CloseWindowHandler(ws *workspace.Workspace, paramKey string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id := ctx.Param(paramKey)
		if err := ws.Close(id); err != nil {
			if xe.Is(err, xe.ErrNotFound) {
				return apierr.NotFound(apierr.WithSubject(id))
			}
			return apierr.InternalServerError(err)
		}
		return ctx.NoContent(http.StatusNoContent)
	}
}
