package main

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opst/karfab/cmd/kard/handlers"
	"github.com/opst/karfab/pkg/auth"
	"github.com/opst/karfab/pkg/echoutil"
	"github.com/opst/karfab/pkg/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var API_ROOT = "/api"

func api(subpath string) string {
	if !strings.HasSuffix(subpath, "/") {
		subpath += "/"
	}
	return fmt.Sprintf("%s/%s", API_ROOT, subpath)
}

type Services struct {
	Cache     handlers.Cache
	Workspace *workspace.Workspace
	Auth      *auth.Manager

	// Verify checks bearer tokens. When it is nil, mutating APIs are not protected.
	Verify func(token string) (*auth.Claims, error)

	// UploadDir is where uploaded KAR files are stored.
	UploadDir string

	Metrics prometheus.Gatherer
}

func BuildServer(s Services, loglevel string) *echo.Echo {
	e := echo.New()
	echoutil.SetLevel(e, loglevel)

	e.HTTPErrorHandler = echoutil.ErrorHandler(e)

	e.Pre(middleware.AddTrailingSlash())

	// logging for server-side latency.
	e.Use(echoutil.LogHandlerFunc)

	protected := []echo.MiddlewareFunc{}
	if s.Verify != nil {
		protected = append(protected, handlers.RequireToken(s.Verify))
	}

	e.GET(api("archives"), handlers.ListArchivesHandler(s.Cache))
	e.POST(api("archives"), handlers.UploadArchiveHandler(s.Cache, s.UploadDir), protected...)

	e.GET(api("objects/:lsid"), handlers.GetObjectHandler(s.Cache, "lsid"))
	e.POST(api("objects/:lsid/open"), handlers.OpenObjectHandler(s.Cache, "lsid"), protected...)

	e.GET(api("windows"), handlers.ListWindowsHandler(s.Workspace))
	e.DELETE(api("windows/:id"), handlers.CloseWindowHandler(s.Workspace, "id"), protected...)

	e.POST(api("auth/:domain/proxy"), handlers.IssueProxyHandler(s.Auth, "domain"))
	e.DELETE(api("auth/:domain/proxy"), handlers.RevokeProxyHandler(s.Auth, "domain"), protected...)

	if s.Metrics != nil {
		e.GET("/metrics/", echo.WrapHandler(promhttp.HandlerFor(s.Metrics, promhttp.HandlerOpts{})))
	}

	return e
}
