// Package lsid handles Life Science Identifiers, the globally unique ids of
// objects stored in KAR archives.
//
// A LSID is formatted as
//
//	urn:lsid:<authority>:<namespace>:<object>:<revision>
//
// where revision is a positive integer.
package lsid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var ErrMalformed = errors.New("malformed lsid")

const prefix = "urn:lsid:"

type LSID struct {
	Authority string
	Namespace string
	Object    string
	Revision  int
}

// New mints a LSID with a random object id, revision 1.
func New(authority, namespace string) LSID {
	return LSID{
		Authority: authority,
		Namespace: namespace,
		Object:    uuid.NewString(),
		Revision:  1,
	}
}

// Parse parses a string as LSID.
//
// Revision can be omitted. Then, it is handled as revision 1.
func Parse(s string) (LSID, error) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < len(prefix) || !strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return LSID{}, fmt.Errorf("%w: %q does not start with %q", ErrMalformed, s, prefix)
	}

	parts := strings.Split(trimmed[len(prefix):], ":")
	if len(parts) != 3 && len(parts) != 4 {
		return LSID{}, fmt.Errorf("%w: %q should have 3 or 4 parts after %q", ErrMalformed, s, prefix)
	}
	for _, p := range parts {
		if p == "" {
			return LSID{}, fmt.Errorf("%w: %q has an empty part", ErrMalformed, s)
		}
	}

	l := LSID{
		Authority: parts[0],
		Namespace: parts[1],
		Object:    parts[2],
		Revision:  1,
	}
	if len(parts) == 4 {
		rev, err := strconv.Atoi(parts[3])
		if err != nil || rev < 1 {
			return LSID{}, fmt.Errorf("%w: %q has bad revision", ErrMalformed, s)
		}
		l.Revision = rev
	}
	return l, nil
}

// MustParse is Parse, but panics on error.
func MustParse(s string) LSID {
	l, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return l
}

func (l LSID) String() string {
	return fmt.Sprintf("%s%s:%s:%s:%d", prefix, l.Authority, l.Namespace, l.Object, l.Revision)
}

// Key returns a canonical form of the LSID. Use this as a map key.
func (l LSID) Key() string {
	return l.String()
}

func (l LSID) IsZero() bool {
	return l == LSID{}
}

func (l LSID) Equal(o LSID) bool {
	return l == o
}

// SameObject reports whether l and o refer the same object, ignoring revisions.
func (l LSID) SameObject(o LSID) bool {
	return l.Authority == o.Authority && l.Namespace == o.Namespace && l.Object == o.Object
}

// Next returns the LSID of the next revision.
func (l LSID) Next() LSID {
	n := l
	n.Revision += 1
	return n
}
