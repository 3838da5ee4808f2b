// Package buildtime tells the version of this build.
//
// VERSION and revision files are rewritten by the release build.
package buildtime

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed VERSION
var rawVersion string

//go:embed revision
var rawRevision string

// Version is the release version, like "v0.1.0".
func Version() string {
	return strings.TrimSpace(rawVersion)
}

// Revision is the git commit hash which this build is made from.
func Revision() string {
	return strings.TrimSpace(rawRevision)
}

func VersionString() string {
	return fmt.Sprintf("%s (commit: %s)", Version(), Revision())
}
