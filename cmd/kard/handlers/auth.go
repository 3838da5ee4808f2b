package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/opst/karfab/pkg/api/binding"
	apierr "github.com/opst/karfab/pkg/api/errors"
	"github.com/opst/karfab/pkg/auth"
	xe "github.com/opst/karfab/pkg/errors"
)

// ContextUser is the key of echo.Context to get the authenticated user.
const ContextUser = "karfab.user"

// IssueProxyHandler authenticates the user in the domain with basic auth credential,
// and responds a new proxy.
func IssueProxyHandler(am *auth.Manager, paramKey string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		domain := ctx.Param(paramKey)
		user, password, ok := ctx.Request().BasicAuth()
		if !ok {
			return apierr.Unauthorized("credential is required", errors.New("no basic auth"))
		}

		p, err := am.Login(
			ctx.Request().Context(), domain,
			auth.Credential{User: user, Password: password},
		)
		if err != nil {
			switch {
			case xe.Is(err, xe.ErrNotFound):
				return apierr.NotFound(apierr.WithSubject(domain))
			case xe.Is(err, xe.ErrUnauthorized):
				return apierr.Unauthorized("authentication failed", err)
			default:
				return apierr.ServiceUnavailable("retry later", err)
			}
		}
		return ctx.JSON(http.StatusOK, binding.ComposeProxy(p))
	}
}

func RevokeProxyHandler(am *auth.Manager, paramKey string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		domain := ctx.Param(paramKey)
		if err := am.Revoke(domain); err != nil {
			if xe.Is(err, xe.ErrNotFound) {
				return apierr.NotFound(apierr.WithSubject(domain))
			}
			return apierr.InternalServerError(err)
		}
		return ctx.NoContent(http.StatusNoContent)
	}
}

// RequireToken is a middleware rejecting requests without valid bearer tokens.
func RequireToken(verify func(token string) (*auth.Claims, error)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			h := ctx.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || token == "" {
				return apierr.Unauthorized("bearer token is required", errors.New("no bearer token"))
			}
			claims, err := verify(token)
			if err != nil {
				if xe.Is(err, xe.ErrExpired) {
					return apierr.Unauthorized("token is expired", err)
				}
				return apierr.Unauthorized("token is invalid", err)
			}
			ctx.Set(ContextUser, claims.User())
			return next(ctx)
		}
	}
}
