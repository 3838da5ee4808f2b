package modules

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	xe "github.com/opst/karfab/pkg/errors"
	kio "github.com/opst/karfab/pkg/io"
)

// SchemeOCI is the scheme of sources which are OCI images.
const SchemeOCI = "oci://"

// Progress wraps a reader of a file being fetched, to observe progress.
//
// size is -1 when it is unknown.
type Progress func(name string, size int64, r io.Reader) io.Reader

type fetchOption struct {
	client        *http.Client
	progress      Progress
	remoteOptions []remote.Option
}

type FetchOption func(*fetchOption) *fetchOption

// WithHTTPClient sets the client for http(s) sources.
func WithHTTPClient(c *http.Client) FetchOption {
	return func(fo *fetchOption) *fetchOption {
		fo.client = c
		return fo
	}
}

// WithProgress sets a hook to observe progress.
func WithProgress(p Progress) FetchOption {
	return func(fo *fetchOption) *fetchOption {
		fo.progress = p
		return fo
	}
}

// WithRemoteOptions passes options to the registry client for oci:// sources.
func WithRemoteOptions(options ...remote.Option) FetchOption {
	return func(fo *fetchOption) *fetchOption {
		fo.remoteOptions = append(fo.remoteOptions, options...)
		return fo
	}
}

// Fetch downloads KAR files from source into destDir.
//
// source is one of:
//
// - http(s)://.../name.kar : the KAR file.
//
// - oci://registry/repository:tag : an OCI image. All *.kar files in its layers are fetched.
//
// # Returns
//
// - []string: paths of written files.
//
// - error
func Fetch(ctx context.Context, source string, destDir string, options ...FetchOption) ([]string, error) {
	opt := &fetchOption{
		client:   http.DefaultClient,
		progress: func(_ string, _ int64, r io.Reader) io.Reader { return r },
	}
	for _, o := range options {
		opt = o(opt)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}

	switch {
	case strings.HasPrefix(source, SchemeOCI):
		return fetchImage(ctx, strings.TrimPrefix(source, SchemeOCI), destDir, opt)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		p, err := fetchHTTP(ctx, source, destDir, opt)
		if err != nil {
			return nil, err
		}
		return []string{p}, nil
	default:
		return nil, fmt.Errorf("unsupported source: %s", source)
	}
}

func fetchHTTP(ctx context.Context, source string, destDir string, opt *fetchOption) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", err
	}
	base := path.Base(u.Path)
	if !isKAR(base) {
		return "", fmt.Errorf("%s is not a KAR file", source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return "", err
	}
	resp, err := opt.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", xe.ErrNotFound, source)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: unexpected status %d", source, resp.StatusCode)
	}

	return writeFile(destDir, base, opt.progress(base, resp.ContentLength, resp.Body))
}

func fetchImage(ctx context.Context, ref string, destDir string, opt *fetchOption) ([]string, error) {
	r, err := name.ParseReference(ref)
	if err != nil {
		return nil, err
	}
	img, err := remote.Image(r, append([]remote.Option{remote.WithContext(ctx)}, opt.remoteOptions...)...)
	if err != nil {
		return nil, err
	}
	layers, err := img.Layers()
	if err != nil {
		return nil, err
	}

	written := []string{}
	for _, l := range layers {
		if err := func() error {
			rc, err := l.Uncompressed()
			if err != nil {
				return err
			}
			defer rc.Close()

			return TarWalk(rc, func(hdr *tar.Header, payload io.Reader, err error) error {
				if err != nil {
					return err
				}
				if hdr.Typeflag != tar.TypeReg || !isKAR(hdr.Name) {
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				base := path.Base(hdr.Name)
				p, err := writeFile(destDir, base, opt.progress(base, hdr.Size, payload))
				if err != nil {
					return err
				}
				written = append(written, p)
				return nil
			})
		}(); err != nil {
			return written, err
		}
	}
	if len(written) == 0 {
		return nil, fmt.Errorf("%w: no KAR files in %s", xe.ErrNotFound, ref)
	}
	return written, nil
}

func isKAR(p string) bool {
	return strings.EqualFold(path.Ext(p), ".kar")
}

func writeFile(destDir string, base string, r io.Reader) (string, error) {
	dest := filepath.Join(destDir, base)
	if _, err := kio.WriteFile(dest, r); err != nil {
		return "", err
	}
	return dest, nil
}
