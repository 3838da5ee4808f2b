// Package io writes files without leaving half-written ones.
package io

import (
	"io"
	"os"
	"path/filepath"
)

// CreateAll creates (or truncates) a file with its parent directories, if missing.
//
// args:
//   - name: filepath to be created.
//   - fmod: os.FileMode for file.
//   - dmod: os.FileMode for directory.
//
// Note that `dmod` effects to only newly-created directories.
func CreateAll(name string, fmod os.FileMode, dmod os.FileMode) (*os.File, error) {
	dirname := filepath.Dir(name)
	if err := os.MkdirAll(dirname, dmod); err != nil {
		return nil, err
	}

	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, fmod)
}

type writeOption struct {
	dmod      os.FileMode
	overwrite bool
}

type WriteOption func(*writeOption) *writeOption

// WithDirMode sets os.FileMode for newly-created parent directories. Default is 0755.
func WithDirMode(dmod os.FileMode) WriteOption {
	return func(wo *writeOption) *writeOption {
		wo.dmod = dmod
		return wo
	}
}

// NoOverwrite makes WriteFile fail with an error satisfying errors.Is(err, fs.ErrExist)
// when the destination exists.
func NoOverwrite() WriteOption {
	return func(wo *writeOption) *writeOption {
		wo.overwrite = false
		return wo
	}
}

// WriteFile copies r into dest.
//
// Content is written into a temporary file in the same directory first, and then
// moved to dest. So dest is never seen half-written.
//
// It returns the number of bytes written.
func WriteFile(dest string, r io.Reader, options ...WriteOption) (int64, error) {
	opt := &writeOption{dmod: 0o755, overwrite: true}
	for _, o := range options {
		opt = o(opt)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, opt.dmod); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}

	if !opt.overwrite {
		// link fails when dest exists.
		if err := os.Link(tmp.Name(), dest); err != nil {
			return n, err
		}
		return n, nil
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return n, err
	}
	return n, nil
}
