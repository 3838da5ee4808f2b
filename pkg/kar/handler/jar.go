package handler

import (
	"context"
	"fmt"

	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/kar/types"
	"github.com/opst/karfab/pkg/workspace"
)

type jarHandler struct {
	typeMatcher
	dest string
}

// NewJAR returns a Handler for jar entries.
//
// It extracts entries under dest on Cache, and caches nothing.
// Jar entries cannot be opened.
func NewJAR(h *types.Hierarchy, dest string) Handler {
	return &jarHandler{
		typeMatcher: typeMatcher{hierarchy: h, legacy: types.LegacyJar, root: types.JarFile},
		dest:        dest,
	}
}

func (*jarHandler) Name() string {
	return types.LegacyJar
}

func (jh *jarHandler) Cache(ctx context.Context, f *kar.File, e kar.Entry) (any, error) {
	if _, err := kar.Extract(ctx, f, e, jh.dest); err != nil {
		return nil, err
	}
	return nil, nil
}

func (jh *jarHandler) Open(ctx context.Context, f *kar.File, e kar.Entry, cached any) (*workspace.Window, error) {
	return nil, fmt.Errorf("%w: %s is a jar", ErrNotViewable, e.Name)
}
