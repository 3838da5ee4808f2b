package kar

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	xe "github.com/opst/karfab/pkg/errors"
)

const ManifestPath = "META-INF/MANIFEST.MF"

// well-known manifest attribute names.
const (
	AttrManifestVersion    = "Manifest-Version"
	AttrKARVersion         = "KAR-Version"
	AttrLSID               = "lsid"
	AttrModuleDependencies = "module-dependencies"
	AttrOpenable           = "openable"

	AttrName      = "Name"
	AttrType      = "type"
	AttrHandler   = "handler"
	AttrDependsOn = "dependsOn"
)

// max bytes of a line in manifest, excluding line break.
const maxLineLength = 72

// Attributes of manifest section. Attribute names are case insensitive.
type Attributes struct {
	keys   []string // in original case, in order of appearance.
	values map[string]string
}

func NewAttributes() *Attributes {
	return &Attributes{values: map[string]string{}}
}

func (a *Attributes) Get(name string) string {
	if a == nil {
		return ""
	}
	return a.values[strings.ToLower(name)]
}

func (a *Attributes) Has(name string) bool {
	if a == nil {
		return false
	}
	_, ok := a.values[strings.ToLower(name)]
	return ok
}

// Set sets an attribute. Setting existing attribute overwrites its value.
func (a *Attributes) Set(name, value string) {
	k := strings.ToLower(name)
	if _, ok := a.values[k]; !ok {
		a.keys = append(a.keys, name)
	}
	a.values[k] = value
}

// Names returns attribute names in the order they are set.
func (a *Attributes) Names() []string {
	if a == nil {
		return nil
	}
	return append([]string{}, a.keys...)
}

// Map returns a copy of attributes, keyed by original names.
func (a *Attributes) Map() map[string]string {
	m := map[string]string{}
	if a == nil {
		return m
	}
	for _, k := range a.keys {
		m[k] = a.values[strings.ToLower(k)]
	}
	return m
}

// Manifest is the parsed content of META-INF/MANIFEST.MF .
type Manifest struct {
	Main *Attributes

	// per-entry sections, keyed by entry name.
	Entries map[string]*Attributes

	order []string
}

func NewManifest() *Manifest {
	return &Manifest{Main: NewAttributes(), Entries: map[string]*Attributes{}}
}

// Section returns the section for the entry name, creating it when missing.
func (m *Manifest) Section(name string) *Attributes {
	if s, ok := m.Entries[name]; ok {
		return s
	}
	s := NewAttributes()
	m.Entries[name] = s
	m.order = append(m.order, name)
	return s
}

// EntryNames returns names of per-entry sections in order of appearance.
func (m *Manifest) EntryNames() []string {
	return append([]string{}, m.order...)
}

// ParseManifest reads a manifest in the jar manifest syntax.
//
// Sections are separated by blank lines. The first one is the main section,
// and others should start with "Name:" attribute.
// A line starting with a single space continues the previous line.
func ParseManifest(r io.Reader) (*Manifest, error) {
	m := NewManifest()

	scanner := bufio.NewScanner(r)
	lineno := 0

	var current *Attributes = m.Main
	inMain := true
	started := false // any attribute in current section?

	var pendingName, pendingValue string
	pending := false

	flush := func() error {
		if !pending {
			return nil
		}
		pending = false
		if !inMain && !started {
			if !strings.EqualFold(pendingName, AttrName) {
				return fmt.Errorf(
					"%w: manifest l%d: section should start with %s, not %s",
					xe.ErrCorruptEntry, lineno, AttrName, pendingName,
				)
			}
			if _, dup := m.Entries[pendingValue]; dup {
				return fmt.Errorf(
					"%w: manifest l%d: duplicated section for %s",
					xe.ErrCorruptEntry, lineno, pendingValue,
				)
			}
			current = m.Section(pendingValue)
			started = true
			return nil
		}
		started = true
		current.Set(pendingName, pendingValue)
		return nil
	}

	for scanner.Scan() {
		lineno += 1
		line := strings.TrimSuffix(scanner.Text(), "\r")

		if strings.HasPrefix(line, " ") {
			if !pending {
				return nil, fmt.Errorf(
					"%w: manifest l%d: continuation without attribute",
					xe.ErrCorruptEntry, lineno,
				)
			}
			pendingValue += line[1:]
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}

		if line == "" {
			if started {
				inMain = false
				started = false
			}
			continue
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf(
				"%w: manifest l%d: malformed attribute line %q",
				xe.ErrCorruptEntry, lineno, line,
			)
		}
		pendingName = name
		pendingValue = strings.TrimPrefix(value, " ")
		pending = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", xe.ErrCorruptEntry, err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return m, nil
}

// WriteTo writes manifest in the jar manifest syntax.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64

	writeAttr := func(name, value string) error {
		n, err := bw.WriteString(wrapLine(name + ": " + value))
		written += int64(n)
		return err
	}
	writeSection := func(a *Attributes) error {
		for _, k := range a.Names() {
			if err := writeAttr(k, a.Get(k)); err != nil {
				return err
			}
		}
		n, err := bw.WriteString("\r\n")
		written += int64(n)
		return err
	}

	main := m.Main
	if !main.Has(AttrManifestVersion) {
		main = NewAttributes()
		main.Set(AttrManifestVersion, "1.0")
		for _, k := range m.Main.Names() {
			main.Set(k, m.Main.Get(k))
		}
	}
	if err := writeSection(main); err != nil {
		return written, err
	}

	names := m.EntryNames()
	if len(names) != len(m.Entries) {
		// sections are set directly to the map. use a stable order.
		names = names[:0]
		for n := range m.Entries {
			names = append(names, n)
		}
		sort.Strings(names)
	}
	for _, n := range names {
		if err := writeAttr(AttrName, n); err != nil {
			return written, err
		}
		if err := writeSection(m.Entries[n]); err != nil {
			return written, err
		}
	}
	return written, bw.Flush()
}

// wrapLine breaks line into 72 bytes chunks, joined with continuation.
func wrapLine(line string) string {
	sb := new(strings.Builder)
	limit := maxLineLength
	for len(line) > limit {
		cut := limit
		// do not break a multibyte character.
		for cut > 0 && !isRuneStart(line[cut]) {
			cut -= 1
		}
		sb.WriteString(line[:cut])
		sb.WriteString("\r\n ")
		line = line[cut:]
		limit = maxLineLength - 1 // for a leading space
	}
	sb.WriteString(line)
	sb.WriteString("\r\n")
	return sb.String()
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
