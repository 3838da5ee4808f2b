package handlers

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/opst/karfab/pkg/api/binding"
	apierr "github.com/opst/karfab/pkg/api/errors"
	"github.com/opst/karfab/pkg/api/types"
	"github.com/opst/karfab/pkg/cache"
	"github.com/opst/karfab/pkg/cache/index"
	xe "github.com/opst/karfab/pkg/errors"
	kio "github.com/opst/karfab/pkg/io"
	"github.com/opst/karfab/pkg/lsid"
	"github.com/opst/karfab/pkg/workspace"
)

// Cache is what handlers need from cache.Manager.
type Cache interface {
	Records(ctx context.Context) ([]index.Record, error)
	CacheArchive(ctx context.Context, path string) (cache.Report, error)
	ForgetArchive(ctx context.Context, path string) ([]lsid.LSID, error)
	Get(ctx context.Context, l lsid.LSID) (*cache.Object, error)
	OpenWindow(ctx context.Context, l lsid.LSID) (*workspace.Window, error)
}

var _ Cache = &cache.Manager{}

// MaxArchiveSize is the limit of uploaded KAR files.
const MaxArchiveSize = 256 << 20

// rejectedArchive tells the error is caused by the content of archives.
func rejectedArchive(err error) bool {
	for _, e := range []error{
		xe.ErrCorruptEntry, xe.ErrUnsupportedVersion, xe.ErrMissingDependency,
		xe.ErrNoHandler, xe.ErrAmbiguousHandler, xe.ErrUnknownType,
	} {
		if xe.Is(err, e) {
			return true
		}
	}
	return false
}

func ListArchivesHandler(c Cache) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		records, err := c.Records(ctx.Request().Context())
		if err != nil {
			return apierr.InternalServerError(err)
		}
		resp := make([]types.Record, 0, len(records))
		for _, r := range records {
			resp = append(resp, binding.ComposeRecord(r))
		}
		return ctx.JSON(http.StatusOK, resp)
	}
}

// UploadArchiveHandler stores the request body as a KAR file into dir, and caches it.
//
// The file name is given by query parameter "name".
// When the archive cannot be cached, the file is removed.
func UploadArchiveHandler(c Cache, dir string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		name := ctx.QueryParam("name")
		if name == "" || filepath.Base(name) != name || !strings.EqualFold(filepath.Ext(name), ".kar") {
			return apierr.BadRequest(
				`query parameter "name" should be a file name ending with ".kar"`,
				fmt.Errorf("bad name: %q", name),
			)
		}
		dest := filepath.Join(dir, name)
		if _, err := os.Stat(dest); err == nil {
			return apierr.Conflict(
				"archive exists already",
				apierr.WithSubject(name), apierr.WithAdvice("choose other name"),
			)
		}

		req := ctx.Request()
		body := http.MaxBytesReader(ctx.Response(), req.Body, MaxArchiveSize)
		if _, err := kio.WriteFile(dest, body, kio.NoOverwrite()); err != nil {
			if xe.Is(err, fs.ErrExist) {
				return apierr.Conflict(
					"archive exists already",
					apierr.WithSubject(name), apierr.WithAdvice("choose other name"),
				)
			}
			if mbe := new(http.MaxBytesError); xe.As(err, &mbe) {
				return apierr.TooLarge(MaxArchiveSize, err)
			}
			return apierr.InternalServerError(err)
		}

		rctx := req.Context()
		report, err := c.CacheArchive(rctx, dest)
		if err != nil {
			if _, ferr := c.ForgetArchive(context.WithoutCancel(rctx), dest); ferr != nil {
				ctx.Logger().Warnf("failed to forget %s: %s", dest, ferr)
			}
			if rerr := os.Remove(dest); rerr != nil {
				ctx.Logger().Warnf("failed to remove %s: %s", dest, rerr)
			}
			if rejectedArchive(err) {
				return apierr.UnprocessableEntity(
					"archive is not acceptable", err, apierr.WithSubject(name),
				)
			}
			return apierr.InternalServerError(err)
		}

		return ctx.JSON(http.StatusCreated, binding.ComposeReport(report))
	}
}

func paramLSID(ctx echo.Context, key string) (lsid.LSID, error) {
	raw, err := url.PathUnescape(ctx.Param(key))
	if err != nil {
		return lsid.LSID{}, apierr.BadRequest("lsid should be url-encoded", err)
	}
	l, err := lsid.Parse(raw)
	if err != nil {
		return lsid.LSID{}, apierr.BadRequest(
			"lsid should be like urn:lsid:<authority>:<namespace>:<object>:<revision>", err,
		)
	}
	return l, nil
}
