// Package kar reads and writes KAR (Kepler ARchive) files.
//
// A KAR is a zip archive with a jar-style manifest at META-INF/MANIFEST.MF.
// Each archived object has a section in the manifest which declares its LSID and type.
package kar

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Masterminds/semver"
	xe "github.com/opst/karfab/pkg/errors"
	"github.com/opst/karfab/pkg/lsid"
)

// DefaultSupportedVersions is a semver constraint of KAR-Version which can be read.
const DefaultSupportedVersions = ">= 1.0.0, < 3.0.0"

// LegacyVersion is assumed for archives without KAR-Version.
const LegacyVersion = "1.0"

// Entry is an archived object.
type Entry struct {
	// Name is path of the entry in the archive.
	Name string

	// LSID identifies this entry globally.
	LSID lsid.LSID

	// Type is the declared type of the entry.
	//
	// It is a legacy short name or a fully-qualified type name.
	Type string

	// Handler is the name of handler requested explicitly by the archive. It can be empty.
	Handler string

	// DependsOn lists LSIDs of objects which this entry requires.
	DependsOn []lsid.LSID

	Attributes map[string]string
}

// File is an opened KAR file.
//
// File is safe for concurrent reads.
type File struct {
	path     string
	zr       *zip.ReadCloser
	manifest *Manifest

	lsid    lsid.LSID
	version *semver.Version
	deps    []string

	entries []Entry
	byName  map[string]int
	zipped  map[string]*zip.File
}

type openOption struct {
	supportedVersions string
}

type Option func(*openOption) *openOption

// WithSupportedVersions sets semver constraint for KAR-Version of archives to be opened.
func WithSupportedVersions(constraint string) Option {
	return func(oo *openOption) *openOption {
		oo.supportedVersions = constraint
		return oo
	}
}

// Open opens a KAR file and reads its manifest.
//
// # Errors
//
// - ErrUnsupportedVersion: KAR-Version of the file does not satisfy supported versions.
//
// - ErrCorruptEntry: the manifest is broken, or it declares entries not in the archive.
func Open(filepath string, options ...Option) (f *File, err error) {
	opt := &openOption{supportedVersions: DefaultSupportedVersions}
	for _, o := range options {
		opt = o(opt)
	}
	constraint, err := semver.NewConstraint(opt.supportedVersions)
	if err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(filepath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", xe.ErrCorruptEntry, filepath, err)
	}
	defer func() {
		if err != nil {
			zr.Close()
		}
	}()

	file := &File{
		path:   filepath,
		zr:     zr,
		byName: map[string]int{},
		zipped: map[string]*zip.File{},
	}
	for _, zf := range zr.File {
		file.zipped[zf.Name] = zf
	}

	zman, ok := file.zipped[ManifestPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s: %s is not found", xe.ErrCorruptEntry, filepath, ManifestPath)
	}
	mr, err := zman.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", xe.ErrCorruptEntry, filepath, err)
	}
	manifest, err := ParseManifest(mr)
	mr.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath, err)
	}
	file.manifest = manifest

	if err := file.readMain(constraint); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath, err)
	}
	if err := file.readEntries(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath, err)
	}
	return file, nil
}

func (f *File) readMain(constraint *semver.Constraints) error {
	main := f.manifest.Main

	rawVersion := main.Get(AttrKARVersion)
	if rawVersion == "" {
		rawVersion = LegacyVersion
	}
	v, err := semver.NewVersion(rawVersion)
	if err != nil {
		return fmt.Errorf("%w: %s %q: %w", xe.ErrCorruptEntry, AttrKARVersion, rawVersion, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s", xe.ErrUnsupportedVersion, rawVersion)
	}
	f.version = v

	if raw := main.Get(AttrLSID); raw != "" {
		l, err := lsid.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: archive lsid: %w", xe.ErrCorruptEntry, err)
		}
		f.lsid = l
	}

	f.deps = splitList(main.Get(AttrModuleDependencies))
	return nil
}

func (f *File) readEntries() error {
	seen := map[string]string{}
	for _, name := range f.manifest.EntryNames() {
		sec := f.manifest.Entries[name]

		if _, ok := f.zipped[name]; !ok {
			return fmt.Errorf("%w: entry %s is declared but not archived", xe.ErrCorruptEntry, name)
		}

		rawLSID := sec.Get(AttrLSID)
		if rawLSID == "" {
			return fmt.Errorf("%w: entry %s does not have %s", xe.ErrCorruptEntry, name, AttrLSID)
		}
		l, err := lsid.Parse(rawLSID)
		if err != nil {
			return fmt.Errorf("%w: entry %s: %w", xe.ErrCorruptEntry, name, err)
		}
		if other, dup := seen[l.Key()]; dup {
			return fmt.Errorf("%w: entries %s and %s have same lsid %s", xe.ErrCorruptEntry, other, name, l)
		}
		seen[l.Key()] = name

		typ := sec.Get(AttrType)
		if typ == "" {
			return fmt.Errorf("%w: entry %s does not have %s", xe.ErrCorruptEntry, name, AttrType)
		}

		deps := []lsid.LSID{}
		for _, d := range splitList(sec.Get(AttrDependsOn)) {
			dl, err := lsid.Parse(d)
			if err != nil {
				return fmt.Errorf("%w: entry %s: %s: %w", xe.ErrCorruptEntry, name, AttrDependsOn, err)
			}
			deps = append(deps, dl)
		}

		f.byName[name] = len(f.entries)
		f.entries = append(f.entries, Entry{
			Name:       name,
			LSID:       l,
			Type:       typ,
			Handler:    sec.Get(AttrHandler),
			DependsOn:  deps,
			Attributes: sec.Map(),
		})
	}
	return nil
}

func splitList(s string) []string {
	items := []string{}
	for _, i := range strings.Split(s, ",") {
		if i = strings.TrimSpace(i); i != "" {
			items = append(items, i)
		}
	}
	return items
}

// Path returns the filepath where this file is opened from.
func (f *File) Path() string {
	return f.path
}

// LSID returns the LSID of the archive itself. It can be zero.
func (f *File) LSID() lsid.LSID {
	return f.lsid
}

// Version returns KAR-Version of the archive.
func (f *File) Version() *semver.Version {
	return f.version
}

// Dependencies returns modules required by the archive, like "core-2.4.0".
func (f *File) Dependencies() []string {
	return append([]string{}, f.deps...)
}

// Openable reports whether the archive asks to be opened when it is loaded.
func (f *File) Openable() bool {
	return strings.EqualFold(f.manifest.Main.Get(AttrOpenable), "true")
}

// Manifest returns the parsed manifest.
func (f *File) Manifest() *Manifest {
	return f.manifest
}

// Entries returns entries in the order of the manifest.
func (f *File) Entries() []Entry {
	return append([]Entry{}, f.entries...)
}

// Entry returns an entry by name.
func (f *File) Entry(name string) (Entry, bool) {
	i, ok := f.byName[name]
	if !ok {
		return Entry{}, false
	}
	return f.entries[i], true
}

// EntryByLSID returns an entry by LSID.
func (f *File) EntryByLSID(l lsid.LSID) (Entry, bool) {
	for _, e := range f.entries {
		if e.LSID.Equal(l) {
			return e, true
		}
	}
	return Entry{}, false
}

// Read opens content of the entry.
//
// The reader returns ErrCorruptEntry when content is broken.
func (f *File) Read(e Entry) (io.ReadCloser, error) {
	zf, ok := f.zipped[e.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s: %s", xe.ErrNotFound, f.path, e.Name)
	}
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s: %w", xe.ErrCorruptEntry, f.path, e.Name, err)
	}
	return &corruptionReader{rc: rc, name: path.Join(f.path, e.Name)}, nil
}

func (f *File) Close() error {
	return f.zr.Close()
}

// corruptionReader marks read errors as ErrCorruptEntry.
type corruptionReader struct {
	rc   io.ReadCloser
	name string
}

func (cr *corruptionReader) Read(p []byte) (int, error) {
	n, err := cr.rc.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %s: %w", xe.ErrCorruptEntry, cr.name, err)
	}
	return n, err
}

func (cr *corruptionReader) Close() error {
	return cr.rc.Close()
}
