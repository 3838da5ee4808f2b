package handler

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/kar"
	"github.com/opst/karfab/pkg/kar/types"
	"github.com/opst/karfab/pkg/lsid"
	"github.com/opst/karfab/pkg/workspace"
)

// typeMatcher accepts a legacy type name, or descendants of root type.
type typeMatcher struct {
	hierarchy *types.Hierarchy
	legacy    string
	root      string
}

func (tm typeMatcher) HandlesType(typeName string) bool {
	if typeName == tm.legacy {
		return true
	}
	return tm.hierarchy.IsA(typeName, tm.root)
}

// max bytes of an entry read on memory.
const maxEntrySize = 16 << 20

func readEntry(f *kar.File, e kar.Entry) ([]byte, error) {
	rc, err := f.Read(e)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	buf, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(buf) > maxEntrySize {
		return nil, fmt.Errorf("%w: entry %s is too large", xe.ErrCorruptEntry, e.Name)
	}
	return buf, nil
}

// Property of an actor.
type Property struct {
	Name  string `xml:"name,attr"`
	Class string `xml:"class,attr"`
	Value string `xml:"value,attr"`
}

// Port of an actor.
type Port struct {
	Name       string     `xml:"name,attr"`
	Class      string     `xml:"class,attr"`
	Properties []Property `xml:"property"`
}

// Direction returns "input", "output", "input/output" or "" by port properties.
func (p Port) Direction() string {
	in, out := false, false
	for _, prop := range p.Properties {
		switch prop.Name {
		case "input":
			in = true
		case "output":
			out = true
		}
	}
	switch {
	case in && out:
		return "input/output"
	case in:
		return "input"
	case out:
		return "output"
	}
	return ""
}

// ActorMetadata is the cached form of actor entries.
type ActorMetadata struct {
	LSID lsid.LSID `xml:"-"`
	Type string    `xml:"-"`

	XMLName    xml.Name
	Name       string     `xml:"name,attr"`
	Class      string     `xml:"class,attr"`
	Properties []Property `xml:"property"`
	Ports      []Port     `xml:"port"`
}

// Documentation returns the value of "documentation" property, if any.
func (am *ActorMetadata) Documentation() string {
	for _, p := range am.Properties {
		if p.Name == "documentation" {
			return p.Value
		}
	}
	return ""
}

// ParseActorMetadata parses an actor document.
//
// The root element should be <entity> or <class>, having name attribute.
func ParseActorMetadata(content []byte) (*ActorMetadata, error) {
	am := &ActorMetadata{}
	if err := xml.Unmarshal(content, am); err != nil {
		return nil, fmt.Errorf("%w: %w", xe.ErrCorruptEntry, err)
	}
	switch am.XMLName.Local {
	case "entity", "class":
	default:
		return nil, fmt.Errorf("%w: unexpected root element <%s>", xe.ErrCorruptEntry, am.XMLName.Local)
	}
	if am.Name == "" {
		return nil, fmt.Errorf("%w: <%s> without name", xe.ErrCorruptEntry, am.XMLName.Local)
	}
	return am, nil
}

type actorMetadataHandler struct {
	typeMatcher
}

// NewActorMetadata returns a Handler for actor entries.
//
// It handles legacy "actorMetadata" type and NamedObj descendants in the hierarchy.
// Cached objects are *ActorMetadata.
func NewActorMetadata(h *types.Hierarchy) Handler {
	return &actorMetadataHandler{
		typeMatcher: typeMatcher{hierarchy: h, legacy: types.LegacyActorMetadata, root: types.NamedObj},
	}
}

func (*actorMetadataHandler) Name() string {
	return types.LegacyActorMetadata
}

func (ah *actorMetadataHandler) Cache(ctx context.Context, f *kar.File, e kar.Entry) (any, error) {
	content, err := readEntry(f, e)
	if err != nil {
		return nil, err
	}
	am, err := ParseActorMetadata(content)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", e.Name, err)
	}
	am.LSID = e.LSID
	am.Type = e.Type
	return am, nil
}

func (ah *actorMetadataHandler) Open(ctx context.Context, f *kar.File, e kar.Entry, cached any) (*workspace.Window, error) {
	if cached == nil {
		c, err := ah.Cache(ctx, f, e)
		if err != nil {
			return nil, err
		}
		cached = c
	}
	am, ok := cached.(*ActorMetadata)
	if !ok {
		return nil, fmt.Errorf("entry %s: cached object is %T, not *ActorMetadata", e.Name, cached)
	}

	body := new(strings.Builder)
	fmt.Fprintf(body, "%s (%s)\n", am.Name, am.Class)
	if doc := am.Documentation(); doc != "" {
		fmt.Fprintf(body, "\n%s\n", doc)
	}
	if len(am.Ports) != 0 {
		body.WriteString("\nports:\n")
		for _, p := range am.Ports {
			fmt.Fprintf(body, "  - %s [%s]\n", p.Name, p.Direction())
		}
	}
	if len(am.Properties) != 0 {
		body.WriteString("\nproperties:\n")
		for _, p := range am.Properties {
			if p.Name == "documentation" {
				continue
			}
			fmt.Fprintf(body, "  - %s = %s\n", p.Name, p.Value)
		}
	}

	w := workspace.NewWindow(workspace.KindActor, e.LSID, am.Name, body.String())
	w.Props["class"] = am.Class
	w.Props["type"] = e.Type
	return w, nil
}
