package kar

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	xe "github.com/opst/karfab/pkg/errors"
	kio "github.com/opst/karfab/pkg/io"
)

// Extract writes content of the entry into destDir, keeping its path in the archive.
//
// It returns the written filepath.
// Entry names escaping destDir (like "../x") are rejected with ErrCorruptEntry.
func Extract(ctx context.Context, f *File, e Entry, destDir string) (string, error) {
	absdest, err := filepath.Abs(destDir)
	if err != nil {
		return "", err
	}
	fullpath := filepath.Join(absdest, filepath.FromSlash(e.Name))
	if !strings.HasPrefix(fullpath, absdest+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: entry %s escapes from destination", xe.ErrCorruptEntry, e.Name)
	}

	src, err := f.Read(e)
	if err != nil {
		return "", err
	}
	defer src.Close()

	if _, err := kio.WriteFile(fullpath, &ctxReader{ctx: ctx, r: src}); err != nil {
		return "", err
	}
	return fullpath, nil
}

// reads as long as ctx is alive.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	default:
	}
	return r.r.Read(p)
}
