package handler

import "github.com/opst/karfab/pkg/kar/types"

// Defaults returns a Registry with built-in handlers.
//
// moduleDir is where jar entries are extracted to.
func Defaults(h *types.Hierarchy, moduleDir string) (*Registry, error) {
	return NewRegistry(
		NewActorMetadata(h),
		NewJAR(h, moduleDir),
		NewDocumentation(h),
	)
}
