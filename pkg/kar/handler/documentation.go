package handler

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/kar/types"
	"github.com/opst/karfab/pkg/lsid"
	"github.com/opst/karfab/pkg/workspace"
)

// AttrTitle is an entry attribute for title of documentation.
const AttrTitle = "title"

// Documentation is the cached form of documentation entries.
type Documentation struct {
	LSID  lsid.LSID
	Title string
	Text  string
}

type documentationHandler struct {
	typeMatcher
}

// NewDocumentation returns a Handler for documentation entries.
//
// Cached objects are *Documentation.
func NewDocumentation(h *types.Hierarchy) Handler {
	return &documentationHandler{
		typeMatcher: typeMatcher{hierarchy: h, legacy: types.LegacyDocumentation, root: types.Document},
	}
}

func (*documentationHandler) Name() string {
	return types.LegacyDocumentation
}

func (dh *documentationHandler) Cache(ctx context.Context, f *kar.File, e kar.Entry) (any, error) {
	content, err := readEntry(f, e)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: entry %s is not a UTF-8 text", xe.ErrCorruptEntry, e.Name)
	}

	title := e.Attributes[AttrTitle]
	if title == "" {
		title = strings.TrimSuffix(path.Base(e.Name), path.Ext(e.Name))
	}
	return &Documentation{LSID: e.LSID, Title: title, Text: string(content)}, nil
}

func (dh *documentationHandler) Open(ctx context.Context, f *kar.File, e kar.Entry, cached any) (*workspace.Window, error) {
	if cached == nil {
		c, err := dh.Cache(ctx, f, e)
		if err != nil {
			return nil, err
		}
		cached = c
	}
	doc, ok := cached.(*Documentation)
	if !ok {
		return nil, fmt.Errorf("entry %s: cached object is %T, not *Documentation", e.Name, cached)
	}
	return workspace.NewWindow(workspace.KindDocumentation, e.LSID, doc.Title, doc.Text), nil
}
