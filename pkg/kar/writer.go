package kar

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/opst/karfab/pkg/lsid"
)

// EntrySpec describes an entry to be archived.
type EntrySpec struct {
	Name      string
	Type      string
	LSID      lsid.LSID
	Handler   string
	DependsOn []lsid.LSID

	// Attributes are extra attributes written into the entry section.
	Attributes map[string]string

	Content []byte
}

// Writer builds a KAR file.
//
// Entries are kept on memory until Close, because the manifest should be written first.
type Writer struct {
	dest     io.Writer
	manifest *Manifest
	specs    []EntrySpec
	names    map[string]struct{}
	closed   bool
}

type writerOption struct {
	version      string
	dependencies []string
	openable     bool
}

type WriterOption func(*writerOption) *writerOption

// WithVersion sets KAR-Version. Default is "2.1".
//
// Empty version omits KAR-Version, as legacy archives do.
func WithVersion(v string) WriterOption {
	return func(wo *writerOption) *writerOption {
		wo.version = v
		return wo
	}
}

// WithDependencies sets module-dependencies.
func WithDependencies(modules ...string) WriterOption {
	return func(wo *writerOption) *writerOption {
		wo.dependencies = append(wo.dependencies, modules...)
		return wo
	}
}

// AsOpenable marks the archive as openable.
func AsOpenable() WriterOption {
	return func(wo *writerOption) *writerOption {
		wo.openable = true
		return wo
	}
}

// NewWriter starts building a KAR file into dest.
//
// archive can be zero LSID. Then, lsid attribute is omitted.
func NewWriter(dest io.Writer, archive lsid.LSID, options ...WriterOption) *Writer {
	opt := &writerOption{version: "2.1"}
	for _, o := range options {
		opt = o(opt)
	}

	m := NewManifest()
	m.Main.Set(AttrManifestVersion, "1.0")
	if opt.version != "" {
		m.Main.Set(AttrKARVersion, opt.version)
	}
	if !archive.IsZero() {
		m.Main.Set(AttrLSID, archive.String())
	}
	if len(opt.dependencies) != 0 {
		m.Main.Set(AttrModuleDependencies, strings.Join(opt.dependencies, ","))
	}
	if opt.openable {
		m.Main.Set(AttrOpenable, "true")
	}

	return &Writer{dest: dest, manifest: m, names: map[string]struct{}{}}
}

var ErrWriterClosed = errors.New("writer is closed")

// Add registers an entry.
func (w *Writer) Add(spec EntrySpec) error {
	if w.closed {
		return ErrWriterClosed
	}
	if spec.Name == "" || spec.Name == ManifestPath {
		return fmt.Errorf("bad entry name: %q", spec.Name)
	}
	if _, dup := w.names[spec.Name]; dup {
		return fmt.Errorf("entry %s is already added", spec.Name)
	}
	if spec.Type == "" {
		return fmt.Errorf("entry %s: type is required", spec.Name)
	}
	if spec.LSID.IsZero() {
		return fmt.Errorf("entry %s: lsid is required", spec.Name)
	}

	sec := w.manifest.Section(spec.Name)
	sec.Set(AttrLSID, spec.LSID.String())
	sec.Set(AttrType, spec.Type)
	if spec.Handler != "" {
		sec.Set(AttrHandler, spec.Handler)
	}
	if len(spec.DependsOn) != 0 {
		ds := make([]string, 0, len(spec.DependsOn))
		for _, d := range spec.DependsOn {
			ds = append(ds, d.String())
		}
		sec.Set(AttrDependsOn, strings.Join(ds, ","))
	}
	for k, v := range spec.Attributes {
		sec.Set(k, v)
	}

	w.names[spec.Name] = struct{}{}
	w.specs = append(w.specs, spec)
	return nil
}

// Close writes the manifest and entries. It does not close the destination.
func (w *Writer) Close() error {
	if w.closed {
		return ErrWriterClosed
	}
	w.closed = true

	zw := zip.NewWriter(w.dest)
	mw, err := zw.Create(ManifestPath)
	if err != nil {
		return err
	}
	if _, err := w.manifest.WriteTo(mw); err != nil {
		return err
	}

	for _, s := range w.specs {
		ew, err := zw.Create(s.Name)
		if err != nil {
			return err
		}
		if _, err := ew.Write(s.Content); err != nil {
			return err
		}
	}
	return zw.Close()
}
