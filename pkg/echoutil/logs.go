// Package echoutil configures logging of echo servers.
package echoutil

import (
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

var requestSeq atomic.Uint64

// statusOf tells the status code which will be responded.
//
// Errors returned from handlers are not written yet when middlewares see them.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	if he := new(echo.HTTPError); errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// LogHandlerFunc is a middleware logging requests and responses with server-side latency.
//
// Responses are logged in info level, 4xx in warn and 5xx in error.
func LogHandlerFunc(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		seq := requestSeq.Add(1)
		req := c.Request()
		begin := time.Now()
		c.Logger().Debugf("< #%d %s %s", seq, req.Method, req.URL)

		err := next(c)

		status := statusOf(c, err)
		logf := c.Logger().Infof
		switch {
		case 500 <= status:
			logf = c.Logger().Errorf
		case 400 <= status:
			logf = c.Logger().Warnf
		}
		logf(
			"> #%d %s %s: status = %d in %v",
			seq, req.Method, req.URL, status, time.Since(begin),
		)
		return err
	}
}

// ErrorHandler responds errors as echo does by default, and logs their causes
// when they are server-side errors.
func ErrorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		e.DefaultHTTPErrorHandler(err, c)
		if statusOf(c, err) < 500 {
			c.Logger().Debug(err)
			return
		}
		c.Logger().Error(err)
	}
}

var levels = map[string]log.Lvl{
	"debug": log.DEBUG,
	"info":  log.INFO,
	"warn":  log.WARN,
	"":      log.WARN,
	"error": log.ERROR,
	"off":   log.OFF,
}

// SetLevel sets log level of the server.
//
// loglevel is one of debug, info, warn, error or off. Unknown levels fall back to warn.
func SetLevel(e *echo.Echo, loglevel string) {
	lvl, ok := levels[strings.ToLower(loglevel)]
	if !ok {
		e.Logger.SetLevel(log.WARN)
		e.Logger.Warnf("unknown loglevel: %s . fall-backed to warn", loglevel)
		return
	}
	e.Logger.SetLevel(lvl)
}
